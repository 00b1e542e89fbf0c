package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"assetflow/authority"
	"assetflow/domain"
	"assetflow/fallback"
	"assetflow/misc"
	"assetflow/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	systemAdminRole        = Role{ID: "system-admin", Title: "System Administrator"}
	SystemAdminPermission  = Permission{ID: "system:admin", Title: "System Administration"}
	SystemViewPermission   = Permission{ID: "system:view", Title: "System View"}
	systemAdminRoleBinding = RolePermissionBinding{ID: 1, RoleID: systemAdminRole.ID, PermissionID: SystemAdminPermission.ID}

	LoadPermFunc = loadPerms
)

func LoadPermFuncReset() {
	LoadPermFunc = loadPerms
}

func DefaultSecurityConfiguration() error {
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	if err := db.Save(&systemAdminRole).Error; err != nil {
		return err
	}
	if err := db.Save(&SystemAdminPermission).Error; err != nil {
		return err
	}
	if err := db.Save(&systemAdminRoleBinding).Error; err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		admin := User{}
		err := tx.Model(&User{}).Where(&User{ID: 1}).First(&admin).Error
		if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
			initialAdminPassword := os.Getenv("INITIAL_ADMIN_PASSWORD")
			if initialAdminPassword == "" {
				initialAdminPassword = "admin123"
			}
			if err := tx.Save(&User{ID: 1, Name: "admin", Secret: HashSha256(initialAdminPassword)}).Error; err != nil {
				return err
			}
		}
		return tx.Save(&UserRoleBinding{ID: 1, UserID: 1, RoleID: systemAdminRole.ID}).Error
	})
}

type permsResult struct {
	Perms    authority.Permissions `json:"perms"`
	OrgRoles authority.OrgRoles    `json:"orgRoles"`
}

// loadPerms resolves the acting user's role set. The dedicated identity
// service is preferred; any failure falls back to the direct member
// tables, both paths produce the same shape.
func loadPerms(uid types.ID) (authority.Permissions, authority.OrgRoles) {
	r := permsResult{}
	err := fallback.DoFunc("load-perms",
		func() error { return loadPermsFromIdentityService(uid, &r) },
		func() error { return loadPermsFromDatabase(uid, &r) },
	)
	if err != nil {
		panic(err)
	}
	return r.Perms, r.OrgRoles
}

// IDENTITY_SERVICE_URL, e.g. http://identity:8080
func loadPermsFromIdentityService(uid types.ID, out *permsResult) error {
	base := os.Getenv("IDENTITY_SERVICE_URL")
	if base == "" {
		return errors.New("identity service is not configured")
	}
	body, err := misc.HttpInvokeJson(http.MethodGet, fmt.Sprintf("%s/v1/identities/%s/perms", base, uid.String()), nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func loadPermsFromDatabase(uid types.ID, out *permsResult) error {
	var perms authority.Permissions
	var orgRoles authority.OrgRoles
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())

	// system perms
	var systemRoles []string
	if err := db.Model(&UserRoleBinding{}).Where(&UserRoleBinding{UserID: uid}).Pluck("role_id", &systemRoles).Error; err != nil {
		return err
	}

	if len(systemRoles) > 0 {
		var systemPerms []string
		if err := db.Model(&RolePermissionBinding{}).Where("role_id IN (?)", systemRoles).Pluck("permission_id", &systemPerms).Error; err != nil {
			return err
		}
		perms = append(perms, systemPerms...)

		// system role: every organization is visible
		var orgs []domain.Organization
		if err := db.Model(&domain.Organization{}).Scan(&orgs).Error; err != nil {
			return err
		}
		for _, org := range orgs {
			perms = append(perms, fmt.Sprintf("%s_%d", domain.OrgRoleManager, org.ID))
			orgRoles = append(orgRoles, domain.OrgRole{OrgID: org.ID, OrgName: org.Name, Role: domain.OrgRoleManager})
		}
	} else {
		var members []domain.OrgMember
		if err := db.Model(&domain.OrgMember{}).Where(&domain.OrgMember{MemberID: uid}).Scan(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			perms = append(perms, fmt.Sprintf("%s_%d", m.Role, m.OrgID))
			orgRoles = append(orgRoles, domain.OrgRole{OrgID: m.OrgID, Role: m.Role})
		}
	}

	out.Perms = perms
	out.OrgRoles = orgRoles
	return nil
}
