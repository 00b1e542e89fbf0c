package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sony/sonyflake"
)

var (
	templateIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	// default template lookups happen on every entity creation,
	// cache entries are dropped on any template mutation
	defaultTemplateCache = cache.New(5*time.Minute, 1*time.Minute)

	QueryTemplatesFunc      = QueryTemplates
	DetailTemplateFunc      = DetailTemplate
	CreateTemplateFunc      = CreateTemplate
	UpdateTemplateBaseFunc  = UpdateTemplateBase
	DeleteTemplateFunc      = DeleteTemplate
	ReplaceStepsFunc        = ReplaceSteps
	FindDefaultTemplateFunc = FindDefaultTemplate

	ListStepRoleAssignmentsFunc  = ListStepRoleAssignments
	CreateStepRoleAssignmentFunc = CreateStepRoleAssignment
	DeleteStepRoleAssignmentFunc = DeleteStepRoleAssignment
)

type TemplateCreation struct {
	Name      string        `json:"name" validate:"required"`
	Module    domain.Module `json:"module" validate:"required,oneof=work_orders safety_incidents"`
	OrgID     types.ID      `json:"orgId" validate:"required"`
	IsDefault bool          `json:"isDefault"`

	Steps []StepCreation `json:"steps" validate:"required,min=1,dive"`
}

type StepCreation struct {
	Name      string `json:"name" validate:"required"`
	StepOrder int    `json:"stepOrder" validate:"required,min=1"`
	StepType  string `json:"stepType"`
	SLAHours  int    `json:"slaHours"`

	IsRequired bool `json:"isRequired"`
	AutoAssign bool `json:"autoAssign"`

	EntryStatus       string `json:"entryStatus"`
	RejectTargetOrder int    `json:"rejectTargetOrder"`
}

type TemplateBaseUpdating struct {
	Name     string `json:"name" validate:"required"`
	IsActive bool   `json:"isActive"`
}

type StepRoleAssignmentCreation struct {
	Role string `json:"role" validate:"required"`

	CanApprove bool `json:"canApprove"`
	CanReject  bool `json:"canReject"`
	CanAssign  bool `json:"canAssign"`
	CanEdit    bool `json:"canEdit"`
}

type TemplateQuery struct {
	OrgID  types.ID      `json:"orgId" form:"orgId"`
	Module domain.Module `json:"module" form:"module"`
}

// validateStepOrders enforces the initializer precondition: step orders
// are unique, start at 1 and have no gaps. Reject targets must name an
// existing order.
func validateStepOrders(steps []StepCreation) error {
	seen := map[int]bool{}
	for _, s := range steps {
		if s.StepOrder < 1 || s.StepOrder > len(steps) || seen[s.StepOrder] {
			return bizerror.ErrInvalidStepOrder
		}
		seen[s.StepOrder] = true
	}
	for _, s := range steps {
		if s.RejectTargetOrder != 0 && !seen[s.RejectTargetOrder] {
			return bizerror.ErrInvalidStepOrder
		}
	}
	return nil
}

func CreateTemplate(c *TemplateCreation, sec *session.Session) (*domain.WorkflowTemplateDetail, error) {
	if !sec.HasRole(domain.OrgRoleManager + "_" + c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}
	if err := validateStepOrders(c.Steps); err != nil {
		return nil, err
	}

	now := types.CurrentTimestamp()
	detail := &domain.WorkflowTemplateDetail{
		WorkflowTemplate: domain.WorkflowTemplate{
			ID:        idgen.NextID(templateIdWorker),
			Name:      c.Name,
			Module:    c.Module,
			OrgID:     c.OrgID,
			Version:   1,
			IsDefault: c.IsDefault,
			IsActive:  true,

			CreateTime: now,
		},
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if c.IsDefault {
			// lock the existing defaults of the module so two concurrent
			// creations cannot both pass the uniqueness check
			var count int
			q := tx.Set("gorm:query_option", "FOR UPDATE").
				Model(&domain.WorkflowTemplate{}).
				Where(&domain.WorkflowTemplate{Module: c.Module, OrgID: c.OrgID}).
				Where("is_default = ?", true)
			if err := q.Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return bizerror.ErrDefaultTemplateExists
			}
		}

		if err := tx.Create(&detail.WorkflowTemplate).Error; err != nil {
			return err
		}
		for _, s := range c.Steps {
			stepEntity := domain.WorkflowTemplateStep{
				ID: idgen.NextID(templateIdWorker), TemplateID: detail.ID,
				StepOrder: s.StepOrder, Name: s.Name, StepType: s.StepType, SLAHours: s.SLAHours,
				IsRequired: s.IsRequired, AutoAssign: s.AutoAssign,
				EntryStatus: s.EntryStatus, RejectTargetOrder: s.RejectTargetOrder,
				CreateTime: now,
			}
			if err := tx.Create(&stepEntity).Error; err != nil {
				return err
			}
			detail.Steps = append(detail.Steps, stepEntity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dropDefaultTemplateCache(c.Module, c.OrgID)
	return detail, nil
}

func DetailTemplate(id types.ID, sec *session.Session) (*domain.WorkflowTemplateDetail, error) {
	detail := domain.WorkflowTemplateDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.WorkflowTemplate{ID: id}).First(&detail.WorkflowTemplate).Error; err != nil {
			return err
		}
		if !sec.HasOrgViewPerm(detail.OrgID) {
			return bizerror.ErrForbidden
		}
		return tx.Where(&domain.WorkflowTemplateStep{TemplateID: detail.ID}).
			Order("step_order ASC").Find(&detail.Steps).Error
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func QueryTemplates(query *TemplateQuery, sec *session.Session) (*[]domain.WorkflowTemplate, error) {
	var templates []domain.WorkflowTemplate
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))

	q := db.Where(&domain.WorkflowTemplate{OrgID: query.OrgID, Module: query.Module})
	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return &[]domain.WorkflowTemplate{}, nil
	}
	q = q.Where("org_id in (?)", visibleOrgs)
	if err := q.Find(&templates).Error; err != nil {
		return nil, err
	}
	return &templates, nil
}

func UpdateTemplateBase(id types.ID, u *TemplateBaseUpdating, sec *session.Session) (*domain.WorkflowTemplate, error) {
	record := domain.WorkflowTemplate{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.WorkflowTemplate{ID: id}).First(&record).Error; err != nil {
			return err
		}
		if !sec.HasRole(domain.OrgRoleManager + "_" + record.OrgID.String()) {
			return bizerror.ErrForbidden
		}
		if err := tx.Model(&domain.WorkflowTemplate{}).Where(&domain.WorkflowTemplate{ID: id}).
			Update(map[string]interface{}{"name": u.Name, "is_active": u.IsActive, "version": record.Version + 1}).Error; err != nil {
			return err
		}
		return tx.Where(&domain.WorkflowTemplate{ID: id}).First(&record).Error
	})
	if err != nil {
		return nil, err
	}

	dropDefaultTemplateCache(record.Module, record.OrgID)
	return &record, nil
}

func DeleteTemplate(id types.ID, sec *session.Session) error {
	record := domain.WorkflowTemplate{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.WorkflowTemplate{ID: id}).First(&record).Error; err != nil {
			return err
		}
		if !sec.HasRole(domain.OrgRoleManager + "_" + record.OrgID.String()) {
			return bizerror.ErrForbidden
		}
		if err := isTemplateReferenced(tx, id); err != nil {
			return err
		}

		var steps []domain.WorkflowTemplateStep
		if err := tx.Where(&domain.WorkflowTemplateStep{TemplateID: id}).Find(&steps).Error; err != nil {
			return err
		}
		for _, s := range steps {
			if err := tx.Where("step_id = ?", s.ID).Delete(&domain.WorkflowStepRoleAssignment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("template_id = ?", id).Delete(&domain.WorkflowTemplateStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.WorkflowTemplate{ID: id}).Error
	})
	if err != nil {
		return err
	}

	dropDefaultTemplateCache(record.Module, record.OrgID)
	return nil
}

// ReplaceSteps swaps the full step list of a template. Refused once any
// workflow state references the template, the current step pointer of a
// live workflow must never dangle.
func ReplaceSteps(id types.ID, steps []StepCreation, sec *session.Session) (*domain.WorkflowTemplateDetail, error) {
	if err := validateStepOrders(steps); err != nil {
		return nil, err
	}

	detail := domain.WorkflowTemplateDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.WorkflowTemplate{ID: id}).First(&detail.WorkflowTemplate).Error; err != nil {
			return err
		}
		if !sec.HasRole(domain.OrgRoleManager + "_" + detail.OrgID.String()) {
			return bizerror.ErrForbidden
		}
		if err := isTemplateReferenced(tx, id); err != nil {
			return err
		}

		var oldSteps []domain.WorkflowTemplateStep
		if err := tx.Where(&domain.WorkflowTemplateStep{TemplateID: id}).Find(&oldSteps).Error; err != nil {
			return err
		}
		for _, s := range oldSteps {
			if err := tx.Where("step_id = ?", s.ID).Delete(&domain.WorkflowStepRoleAssignment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("template_id = ?", id).Delete(&domain.WorkflowTemplateStep{}).Error; err != nil {
			return err
		}

		now := types.CurrentTimestamp()
		for _, s := range steps {
			stepEntity := domain.WorkflowTemplateStep{
				ID: idgen.NextID(templateIdWorker), TemplateID: id,
				StepOrder: s.StepOrder, Name: s.Name, StepType: s.StepType, SLAHours: s.SLAHours,
				IsRequired: s.IsRequired, AutoAssign: s.AutoAssign,
				EntryStatus: s.EntryStatus, RejectTargetOrder: s.RejectTargetOrder,
				CreateTime: now,
			}
			if err := tx.Create(&stepEntity).Error; err != nil {
				return err
			}
			detail.Steps = append(detail.Steps, stepEntity)
		}

		return tx.Model(&domain.WorkflowTemplate{}).Where(&domain.WorkflowTemplate{ID: id}).
			Update("version", detail.Version+1).Error
	})
	if err != nil {
		return nil, err
	}

	dropDefaultTemplateCache(detail.Module, detail.OrgID)
	return &detail, nil
}

// FindDefaultTemplate resolves the unique default active template of the
// module within an organization. gorm.ErrRecordNotFound when none exists.
func FindDefaultTemplate(module domain.Module, orgID types.ID) (*domain.WorkflowTemplateDetail, error) {
	cacheKey := string(module) + "/" + orgID.String()
	if cached, found := defaultTemplateCache.Get(cacheKey); found {
		detail := cached.(domain.WorkflowTemplateDetail)
		return &detail, nil
	}

	detail := domain.WorkflowTemplateDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	q := db.Where(&domain.WorkflowTemplate{Module: module, OrgID: orgID}).
		Where("is_default = ? AND is_active = ?", true, true)
	if err := q.First(&detail.WorkflowTemplate).Error; err != nil {
		return nil, err
	}
	if err := db.Where(&domain.WorkflowTemplateStep{TemplateID: detail.ID}).
		Order("step_order ASC").Find(&detail.Steps).Error; err != nil {
		return nil, err
	}
	if len(detail.Steps) == 0 {
		return nil, fmt.Errorf("default template %s has no steps", detail.ID.String())
	}

	defaultTemplateCache.Set(cacheKey, detail, cache.DefaultExpiration)
	return &detail, nil
}

func ListStepRoleAssignments(stepID types.ID, sec *session.Session) (*[]domain.WorkflowStepRoleAssignment, error) {
	if _, err := detailStepOwner(stepID, sec, false); err != nil {
		return nil, err
	}

	var assignments []domain.WorkflowStepRoleAssignment
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.WorkflowStepRoleAssignment{StepID: stepID}).Find(&assignments).Error; err != nil {
		return nil, err
	}
	return &assignments, nil
}

func CreateStepRoleAssignment(stepID types.ID, c *StepRoleAssignmentCreation, sec *session.Session) (*domain.WorkflowStepRoleAssignment, error) {
	if _, err := detailStepOwner(stepID, sec, true); err != nil {
		return nil, err
	}

	assignment := domain.WorkflowStepRoleAssignment{
		ID: idgen.NextID(templateIdWorker), StepID: stepID, Role: c.Role,
		CanApprove: c.CanApprove, CanReject: c.CanReject, CanAssign: c.CanAssign, CanEdit: c.CanEdit,
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func DeleteStepRoleAssignment(id types.ID, sec *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	return db.Transaction(func(tx *gorm.DB) error {
		assignment := domain.WorkflowStepRoleAssignment{}
		if err := tx.Where(&domain.WorkflowStepRoleAssignment{ID: id}).First(&assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if _, err := detailStepOwner(assignment.StepID, sec, true); err != nil {
			return err
		}
		return tx.Delete(&domain.WorkflowStepRoleAssignment{ID: id}).Error
	})
}

// detailStepOwner loads the template owning a step and checks the caller
// has either view or manage permission on its organization.
func detailStepOwner(stepID types.ID, sec *session.Session, manage bool) (*domain.WorkflowTemplate, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	step := domain.WorkflowTemplateStep{}
	if err := db.Where(&domain.WorkflowTemplateStep{ID: stepID}).First(&step).Error; err != nil {
		return nil, err
	}
	record := domain.WorkflowTemplate{}
	if err := db.Where(&domain.WorkflowTemplate{ID: step.TemplateID}).First(&record).Error; err != nil {
		return nil, err
	}
	if manage {
		if !sec.HasRole(domain.OrgRoleManager + "_" + record.OrgID.String()) {
			return nil, bizerror.ErrForbidden
		}
	} else if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}
	return &record, nil
}

func isTemplateReferenced(db *gorm.DB, templateID types.ID) error {
	var state domain.WorkflowState
	err := db.Model(&domain.WorkflowState{}).Where(&domain.WorkflowState{TemplateID: templateID}).First(&state).Error
	if err == nil {
		return bizerror.ErrTemplateIsReferenced
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

func dropDefaultTemplateCache(module domain.Module, orgID types.ID) {
	defaultTemplateCache.Delete(string(module) + "/" + orgID.String())
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
