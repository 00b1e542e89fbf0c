package domain

import (
	"github.com/fundwit/go-commons/types"
)

// Module is the entity category a workflow template applies to.
type Module string

const (
	ModuleWorkOrders      Module = "work_orders"
	ModuleSafetyIncidents Module = "safety_incidents"
)

type EntityType string

const (
	EntityTypeWorkOrder EntityType = "work_order"
	EntityTypeIncident  EntityType = "safety_incident"
)

// ModuleOf maps an entity type to the workflow module governing it.
func ModuleOf(entityType EntityType) (Module, bool) {
	switch entityType {
	case EntityTypeWorkOrder:
		return ModuleWorkOrders, true
	case EntityTypeIncident:
		return ModuleSafetyIncidents, true
	}
	return "", false
}

type WorkflowTemplate struct {
	ID   types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name string   `json:"name"`

	Module    Module   `json:"module"`
	OrgID     types.ID `json:"orgId"`
	Version   int      `json:"version"`
	IsDefault bool     `json:"isDefault"`
	IsActive  bool     `json:"isActive"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

// WorkflowTemplateStep is one stage of a template. StepOrder is 1-based,
// unique within the template and gapless.
type WorkflowTemplateStep struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	TemplateID types.ID `json:"templateId"`
	StepOrder  int      `json:"stepOrder"`

	Name     string `json:"name"`
	StepType string `json:"stepType"`
	SLAHours int    `json:"slaHours"`

	IsRequired bool `json:"isRequired"`
	AutoAssign bool `json:"autoAssign"`

	// EntryStatus, when not empty, is applied to the owning work order
	// when the workflow state enters this step.
	EntryStatus string `json:"entryStatus"`
	// RejectTargetOrder is the step order a rejection sends the workflow
	// back to. Zero means the pointer stays put awaiting reassignment.
	RejectTargetOrder int `json:"rejectTargetOrder"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (s *WorkflowTemplateStep) TableName() string {
	return "workflow_template_steps"
}

// WorkflowStepRoleAssignment grants capabilities to one role on one step.
// A role may carry different capabilities on different steps.
type WorkflowStepRoleAssignment struct {
	ID     types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	StepID types.ID `json:"stepId"`
	Role   string   `json:"role"`

	CanApprove bool `json:"canApprove"`
	CanReject  bool `json:"canReject"`
	CanAssign  bool `json:"canAssign"`
	CanEdit    bool `json:"canEdit"`
}

func (a *WorkflowStepRoleAssignment) TableName() string {
	return "workflow_step_role_assignments"
}

type WorkflowTemplateDetail struct {
	WorkflowTemplate

	Steps []WorkflowTemplateStep `json:"steps" gorm:"-"`
}

func (d *WorkflowTemplateDetail) FindStep(stepID types.ID) (WorkflowTemplateStep, bool) {
	for _, s := range d.Steps {
		if s.ID == stepID {
			return s, true
		}
	}
	return WorkflowTemplateStep{}, false
}

func (d *WorkflowTemplateDetail) FindStepByOrder(order int) (WorkflowTemplateStep, bool) {
	for _, s := range d.Steps {
		if s.StepOrder == order {
			return s, true
		}
	}
	return WorkflowTemplateStep{}, false
}
