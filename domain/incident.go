package domain

import (
	"github.com/fundwit/go-commons/types"
)

const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

const (
	IncidentStatusReported      = "reported"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusResolved      = "resolved"
)

type Incident struct {
	ID    types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	OrgID types.ID `json:"orgId"`

	Title       string `json:"title"`
	Description string `json:"description" sql:"type:TEXT"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`

	AssetID    types.ID `json:"assetId"`
	ReporterID types.ID `json:"reporterId"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type IncidentQuery struct {
	OrgID    types.ID `json:"orgId" form:"orgId"`
	Severity string   `json:"severity" form:"severity"`
	Status   string   `json:"status" form:"status"`
}
