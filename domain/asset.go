package domain

import (
	"github.com/fundwit/go-commons/types"
)

type Asset struct {
	ID    types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	OrgID types.ID `json:"orgId"`

	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Category string `json:"category"`
	// LocationPath is the slash separated hierarchy, e.g. "plant-1/line-2/pump-7".
	LocationPath string `json:"locationPath"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type AssetQuery struct {
	OrgID    types.ID `json:"orgId" form:"orgId"`
	Name     string   `json:"name" form:"name"`
	Category string   `json:"category" form:"category"`
}
