package domain

import (
	"github.com/fundwit/go-commons/types"
)

// MaintenancePlan drives preventive work order generation. The cron
// runner creates a work order whenever NextDueTime has passed, then
// advances NextDueTime by FrequencyDays.
type MaintenancePlan struct {
	ID      types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	OrgID   types.ID `json:"orgId"`
	AssetID types.ID `json:"assetId"`

	Name        string `json:"name"`
	Description string `json:"description" sql:"type:TEXT"`

	FrequencyDays int  `json:"frequencyDays"`
	Active        bool `json:"active"`

	NextDueTime types.Timestamp `json:"nextDueTime" sql:"type:DATETIME(6)"`
	LastRunTime types.Timestamp `json:"lastRunTime" sql:"type:DATETIME(6)"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}
