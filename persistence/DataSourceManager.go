package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	otgorm "github.com/smacker/opentracing-gorm"
)

var ActiveDataSourceManager *DataSourceManager

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// ParseDatabaseConfigFromEnv DATABASE_DRIVER, DATABASE_URL
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "mysql"
	}
	args := os.ExpandEnv(os.Getenv("DATABASE_URL"))
	if args == "" {
		return nil, errors.New("environment variable DATABASE_URL is not set")
	}
	return &DatabaseConfig{DriverType: driver, DriverArgs: args}, nil
}

type DataSourceManager struct {
	gormDB *gorm.DB

	DatabaseConfig *DatabaseConfig
}

func (m *DataSourceManager) Start() error {
	db, err := connect(m.DatabaseConfig)
	if err != nil {
		return err
	}
	otgorm.AddGormCallbacks(db)
	m.gormDB = db
	if os.Getenv("GIN_MODE") != "release" {
		m.gormDB.LogMode(true)
	}
	return nil
}

func (m *DataSourceManager) Stop() {
	if m.gormDB != nil {
		if err := m.gormDB.Close(); err != nil {
			log.Printf("failed to close DB: %v", err)
		}
		m.gormDB = nil
	}
}

func (m *DataSourceManager) GormDB(ctx context.Context) *gorm.DB {
	if m.gormDB == nil {
		return nil
	}
	return otgorm.SetSpanToGorm(ctx, m.gormDB.New())
}

func connect(config *DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(config.DriverType, config.DriverArgs)
	if err != nil {
		return nil, err
	}
	err = db.DB().Ping()
	if err != nil {
		return nil, err
	}
	return db, nil
}

// PrepareMysqlDatabase creates the database named in driverArgs when it
// does not exist yet. driverArgs: user:pass@(host:port)/dbname?params
func PrepareMysqlDatabase(driverArgs string) error {
	slash := strings.LastIndex(driverArgs, "/")
	if slash < 0 {
		return errors.New("invalid mysql connection string")
	}
	dbNameAndParams := driverArgs[slash+1:]
	databaseName := dbNameAndParams
	if q := strings.Index(dbNameAndParams, "?"); q >= 0 {
		databaseName = dbNameAndParams[0:q]
	}
	if databaseName == "" {
		return errors.New("database name not found in connection string")
	}

	serverArgs := driverArgs[0:slash+1] + driverArgs[slash+1+len(databaseName):]
	db, err := gorm.Open("mysql", serverArgs)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Exec("CREATE DATABASE IF NOT EXISTS " + databaseName +
		" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci").Error
}
