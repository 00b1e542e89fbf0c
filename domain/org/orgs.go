package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	orgIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateOrgFunc     = CreateOrg
	QueryOrgsFunc     = QueryOrgs
	UpdateOrgBaseFunc = UpdateOrgBase
)

type OrgCreation struct {
	Name       string `json:"name" validate:"required"`
	Identifier string `json:"identifier" validate:"required,lte=6"`
}

type OrgBaseUpdating struct {
	Name string `json:"name" validate:"required"`
}

func CreateOrg(c *OrgCreation, sec *session.Session) (*domain.Organization, error) {
	record := domain.Organization{
		ID: idgen.NextID(orgIdWorker), Name: c.Name, Identifier: strings.ToUpper(c.Identifier),
		NextWorkOrderNum: 1, CreateTime: types.CurrentTimestamp(),
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		// the creator manages the new org
		member := domain.OrgMember{OrgID: record.ID, MemberID: sec.Identity.ID,
			Role: domain.OrgRoleManager, CreateTime: record.CreateTime}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func QueryOrgs(sec *session.Session) (*[]domain.Organization, error) {
	var orgs []domain.Organization
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))

	if sec.Perms.HasGlobalViewRole() {
		if err := db.Find(&orgs).Error; err != nil {
			return nil, err
		}
		return &orgs, nil
	}

	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return &[]domain.Organization{}, nil
	}
	if err := db.Where("id in (?)", visibleOrgs).Find(&orgs).Error; err != nil {
		return nil, err
	}
	return &orgs, nil
}

func UpdateOrgBase(id types.ID, u *OrgBaseUpdating, sec *session.Session) error {
	if !sec.HasRole(domain.OrgRoleManager + "_" + id.String()) {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	return db.Model(&domain.Organization{}).Where(&domain.Organization{ID: id}).
		Update("name", u.Name).Error
}

// NextWorkOrderIdentifier consumes the per-org work order sequence with a
// conditional update, concurrent consumers of the same value lose and
// must retry in a fresh transaction.
func NextWorkOrderIdentifier(orgID types.ID, tx *gorm.DB) (string, error) {
	record := domain.Organization{}
	if err := tx.Where(&domain.Organization{ID: orgID}).First(&record).Error; err != nil {
		return "", err
	}

	identifier := fmt.Sprintf("%s-%d", record.Identifier, record.NextWorkOrderNum)
	db := tx.Model(&domain.Organization{}).
		Where(&domain.Organization{ID: orgID, NextWorkOrderNum: record.NextWorkOrderNum}).
		Update("next_work_order_num", record.NextWorkOrderNum+1)
	if db.Error != nil {
		return "", db.Error
	}
	if db.RowsAffected != 1 {
		return "", errors.New("concurrent modification")
	}
	return identifier, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
