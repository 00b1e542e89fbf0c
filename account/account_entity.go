package account

import (
	"github.com/fundwit/go-commons/types"
)

type User struct {
	ID       types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name     string   `json:"name" gorm:"unique_index:idx_user_name"`
	Nickname string   `json:"nickname"`
	Secret   string   `json:"-"`
}

type UserInfo struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (u *UserInfo) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

type UserCreation struct {
	Name     string `json:"name" validate:"required"`
	Nickname string `json:"nickname"`
	Secret   string `json:"secret" validate:"required"`
}

type UserUpdation struct {
	Nickname string `json:"nickname"`
}

type BasicAuthUpdating struct {
	OriginalSecret string `json:"originalSecret" validate:"required"`
	NewSecret      string `json:"newSecret" validate:"required"`
}

type Role struct {
	ID    string `json:"id" gorm:"primary_key"`
	Title string `json:"title"`
}

type Permission struct {
	ID    string `json:"id" gorm:"primary_key"`
	Title string `json:"title"`
}

type UserRoleBinding struct {
	ID     types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	UserID types.ID `json:"userId"`
	RoleID string   `json:"roleId"`
}

type RolePermissionBinding struct {
	ID           types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	RoleID       string   `json:"roleId"`
	PermissionID string   `json:"permissionId"`
}
