package main

import (
	"context"
	"log"
	"net/http"

	"assetflow/account"
	"assetflow/bizerror"
	"assetflow/client/s3"
	"assetflow/domain"
	"assetflow/domain/approval"
	"assetflow/domain/asset"
	"assetflow/domain/device"
	"assetflow/domain/incident"
	"assetflow/domain/maintenance"
	"assetflow/domain/org"
	"assetflow/domain/template"
	"assetflow/domain/workorder"
	"assetflow/es"
	"assetflow/indices"
	"assetflow/infra/tracing"
	"assetflow/persistence"
	"assetflow/servehttp"
	"assetflow/session"
	"assetflow/sessions"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("service start")

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(context.Background()).AutoMigrate(
		&domain.Organization{}, &domain.OrgMember{},
		&domain.WorkflowTemplate{}, &domain.WorkflowTemplateStep{}, &domain.WorkflowStepRoleAssignment{},
		&domain.WorkflowState{}, &domain.ApprovalRecord{},
		&domain.WorkOrder{}, &domain.WorkOrderAttachment{},
		&domain.Incident{}, &domain.Asset{},
		&domain.Device{}, &domain.SensorReading{},
		&domain.MaintenancePlan{},
		&account.User{}, &account.Role{}, &account.Permission{},
		&account.UserRoleBinding{}, &account.RolePermissionBinding{},
	).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	if err := account.DefaultSecurityConfiguration(); err != nil {
		log.Fatalf("security configuration failed %v\n", err)
	}

	es.CreateClientFromEnv()
	s3.Bootstrap()

	tracingCloser, err := tracing.Bootstrap("assetflow")
	if err != nil {
		log.Fatalf("tracing bootstrap failed %v\n", err)
	}
	defer tracingCloser.Close()

	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "assetflow")
	})

	sessions.RegisterSessionsHandler(engine)

	secured := session.SimpleAuthFilter()
	sessions.RegisterSessionUsersHandler(engine, secured)
	account.RegisterUsersRestAPI(engine, secured)
	org.RegisterOrgsRestAPI(engine, secured)
	template.RegisterTemplatesRestAPI(engine, secured)
	approval.RegisterApprovalsRestAPI(engine, secured)
	workorder.RegisterWorkOrdersRestAPI(engine, secured)
	incident.RegisterIncidentsRestAPI(engine, secured)
	asset.RegisterAssetsRestAPI(engine, secured)
	device.RegisterDevicesRestAPI(engine, secured)
	maintenance.RegisterPlansRestAPI(engine, secured)
	indices.RegisterIndicesRestAPI(engine, secured)

	indices.StartCron()
	maintenance.StartCron()

	servehttp.StartHTTPServer(engine)
}
