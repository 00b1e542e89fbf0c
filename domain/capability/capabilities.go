package capability

import (
	"context"
	"errors"

	"assetflow/domain"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// Capability is the set of workflow actions a caller may take on a step,
// folded from every role assignment the caller matches.
type Capability uint8

const (
	CapApprove Capability = 1 << iota
	CapReject
	CapAssign
	CapEdit
)

func (c Capability) Has(flag Capability) bool {
	return c&flag != 0
}

func (c Capability) CanApprove() bool { return c.Has(CapApprove) }
func (c Capability) CanReject() bool  { return c.Has(CapReject) }
func (c Capability) CanAssign() bool  { return c.Has(CapAssign) }

// CanEdit holding any workflow capability implies the entity stays editable.
func (c Capability) CanEdit() bool { return c != 0 }

var (
	ResolveStepCapabilitiesFunc   = ResolveStepCapabilities
	ResolveEntityCapabilitiesFunc = ResolveEntityCapabilities
)

// ResolveStepCapabilities folds the role assignments of a step against the
// caller's org roles. Unknown steps, missing assignments and nil sessions
// all resolve to no capability.
func ResolveStepCapabilities(stepID types.ID, sec *session.Session) (Capability, error) {
	if sec == nil {
		return 0, nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	step := domain.WorkflowTemplateStep{}
	if err := db.Where(&domain.WorkflowTemplateStep{ID: stepID}).First(&step).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	tmpl := domain.WorkflowTemplate{}
	if err := db.Where(&domain.WorkflowTemplate{ID: step.TemplateID}).First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var assignments []domain.WorkflowStepRoleAssignment
	if err := db.Where(&domain.WorkflowStepRoleAssignment{StepID: stepID}).Find(&assignments).Error; err != nil {
		return 0, err
	}

	var caps Capability
	orgSuffix := "_" + tmpl.OrgID.String()
	for _, a := range assignments {
		if !sec.HasRole(a.Role + orgSuffix) {
			continue
		}
		if a.CanApprove {
			caps |= CapApprove
		}
		if a.CanReject {
			caps |= CapReject
		}
		if a.CanAssign {
			caps |= CapAssign
		}
		if a.CanEdit {
			caps |= CapEdit
		}
	}
	return caps, nil
}

// ResolveEntityCapabilities resolves capabilities against the current step
// of the entity's workflow. Entities without a workflow have no step
// capabilities to grant.
func ResolveEntityCapabilities(entityType domain.EntityType, entityID types.ID, sec *session.Session) (Capability, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	state := domain.WorkflowState{}
	err := db.Where(&domain.WorkflowState{EntityType: entityType, EntityID: entityID}).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return ResolveStepCapabilitiesFunc(state.CurrentStepID, sec)
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
