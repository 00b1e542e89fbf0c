package authority

import (
	"strings"

	"assetflow/domain"

	"github.com/fundwit/go-commons/types"
)

type Permissions []string

func (c Permissions) HasRole(role string) bool {
	for _, v := range c {
		if strings.EqualFold(v, role) {
			return true
		}
	}
	return false
}

func (c Permissions) HasGlobalViewRole() bool {
	for _, v := range c {
		if strings.HasPrefix(strings.ToLower(v), "system:") {
			return true
		}
	}
	return false
}

func (c Permissions) HasRolePrefix(prefix string) bool {
	for _, v := range c {
		if strings.HasPrefix(strings.ToLower(v), strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (c Permissions) HasRoleSuffix(suffix string) bool {
	for _, v := range c {
		if strings.HasSuffix(strings.ToLower(v), strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

func (c Permissions) HasOrgViewPerm(orgID types.ID) bool {
	return c.HasGlobalViewRole() || c.HasRoleSuffix("_"+orgID.String())
}

type OrgRoles []domain.OrgRole

func (c OrgRoles) HasOrg(orgID types.ID) bool {
	for _, v := range c {
		if v.OrgID == orgID {
			return true
		}
	}
	return false
}
