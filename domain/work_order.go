package domain

import (
	"github.com/fundwit/go-commons/types"
)

const (
	WorkOrderStatusOpen       = "open"
	WorkOrderStatusInReview   = "in_review"
	WorkOrderStatusApproved   = "approved"
	WorkOrderStatusInProgress = "in_progress"
	WorkOrderStatusCompleted  = "completed"
	WorkOrderStatusCancelled  = "cancelled"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

type WorkOrder struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Identifier string   `json:"identifier"`
	OrgID      types.ID `json:"orgId"`

	Title       string `json:"title"`
	Description string `json:"description" sql:"type:TEXT"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`

	AssetID    types.ID `json:"assetId"`
	AssigneeID types.ID `json:"assigneeId"`
	CreatorID  types.ID `json:"creatorId"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type WorkOrderQuery struct {
	OrgID    types.ID `json:"orgId" form:"orgId"`
	Title    string   `json:"title" form:"title"`
	Status   string   `json:"status" form:"status"`
	Priority string   `json:"priority" form:"priority"`
	AssetID  types.ID `json:"assetId" form:"assetId"`
}

type WorkOrderAttachment struct {
	ID          types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkOrderID types.ID `json:"workOrderId"`

	Name      string `json:"name"`
	ObjectKey string `json:"objectKey"`

	UploaderID types.ID        `json:"uploaderId"`
	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}
