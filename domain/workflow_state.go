package domain

import (
	"github.com/fundwit/go-commons/types"
)

// WorkflowState is the single mutable cursor recording which step an
// entity instance currently occupies. One live row per (entityType,
// entityID). CurrentStepID always belongs to TemplateID.
type WorkflowState struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	EntityType EntityType `json:"entityType" gorm:"unique_index:idx_entity"`
	EntityID   types.ID   `json:"entityId" gorm:"unique_index:idx_entity"`
	OrgID      types.ID   `json:"orgId"`

	TemplateID    types.ID `json:"templateId"`
	CurrentStepID types.ID `json:"currentStepId"`

	StepStartedAt types.Timestamp `json:"stepStartedAt" sql:"type:DATETIME(6) NOT NULL"`
	CreateTime    types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (s *WorkflowState) TableName() string {
	return "workflow_states"
}

type ApprovalAction string

const (
	ActionApproved   ApprovalAction = "approved"
	ActionRejected   ApprovalAction = "rejected"
	ActionReassigned ApprovalAction = "reassigned"
	ActionEscalated  ApprovalAction = "escalated"
)

// ApprovalRecord is an append-only audit trail entry. Rows are never
// updated or deleted.
type ApprovalRecord struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	WorkflowStateID types.ID   `json:"workflowStateId"`
	EntityType      EntityType `json:"entityType"`
	EntityID        types.ID   `json:"entityId"`
	StepID          types.ID   `json:"stepId"`

	Action   ApprovalAction `json:"action"`
	Comments string         `json:"comments" sql:"type:TEXT"`

	ActorID   types.ID `json:"actorId"`
	ActorName string   `json:"actorName"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (r *ApprovalRecord) TableName() string {
	return "approval_records"
}
