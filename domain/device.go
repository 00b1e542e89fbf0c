package domain

import (
	"github.com/fundwit/go-commons/types"
)

type Device struct {
	ID      types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	OrgID   types.ID `json:"orgId"`
	AssetID types.ID `json:"assetId"`

	Name string `json:"name"`
	// ExternalID is the identifier the device itself reports with.
	ExternalID string `json:"externalId"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type SensorReading struct {
	ID       types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	DeviceID types.ID `json:"deviceId"`

	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`

	RecordedAt types.Timestamp `json:"recordedAt" sql:"type:DATETIME(6) NOT NULL"`
}
