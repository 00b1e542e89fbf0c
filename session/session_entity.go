package session

import (
	"context"
	"time"

	"assetflow/authority"

	"github.com/fundwit/go-commons/types"
)

type Session struct {
	Token    string              `json:"token"`
	Identity Identity            `json:"identity"`
	Perms    authority.Permissions `json:"perms"`
	OrgRoles authority.OrgRoles  `json:"orgRoles"`

	SigningTime time.Time       `json:"-"`
	Context     context.Context `json:"-"`
}

type Identity struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (s *Session) HasRole(role string) bool {
	return s != nil && s.Perms.HasRole(role)
}

func (s *Session) HasRolePrefix(prefix string) bool {
	return s != nil && s.Perms.HasRolePrefix(prefix)
}

func (s *Session) HasRoleSuffix(suffix string) bool {
	return s != nil && s.Perms.HasRoleSuffix(suffix)
}

func (s *Session) HasOrgViewPerm(orgID types.ID) bool {
	return s != nil && s.Perms.HasOrgViewPerm(orgID)
}

// VisibleOrgs parses visible organization ids from Session.Perms.
func (s *Session) VisibleOrgs() []types.ID {
	orgIds := []types.ID{}
	if s == nil {
		return orgIds
	}
	for _, r := range s.OrgRoles {
		orgIds = append(orgIds, r.OrgID)
	}
	return orgIds
}
