package org

import (
	"assetflow/account"
	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	ListOrgMembersFunc  = ListOrgMembers
	UpsertOrgMemberFunc = UpsertOrgMember
	RemoveOrgMemberFunc = RemoveOrgMember
)

type OrgMemberUpsert struct {
	MemberID types.ID `json:"memberId" validate:"required"`
	Role     string   `json:"role" validate:"required,oneof=manager supervisor technician"`
}

type OrgMemberDetail struct {
	domain.OrgMember

	MemberName string `json:"memberName"`
}

func ListOrgMembers(orgID types.ID, sec *session.Session) (*[]OrgMemberDetail, error) {
	if !sec.HasOrgViewPerm(orgID) {
		return nil, bizerror.ErrForbidden
	}

	var members []domain.OrgMember
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.OrgMember{OrgID: orgID}).Find(&members).Error; err != nil {
		return nil, err
	}

	memberIds := make([]types.ID, 0, len(members))
	for _, m := range members {
		memberIds = append(memberIds, m.MemberID)
	}
	names, err := account.QueryAccountNames(memberIds)
	if err != nil {
		return nil, err
	}

	details := make([]OrgMemberDetail, 0, len(members))
	for _, m := range members {
		details = append(details, OrgMemberDetail{OrgMember: m, MemberName: names[m.MemberID]})
	}
	return &details, nil
}

func UpsertOrgMember(orgID types.ID, u *OrgMemberUpsert, sec *session.Session) error {
	if !sec.HasRole(domain.OrgRoleManager + "_" + orgID.String()) {
		return bizerror.ErrForbidden
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	return db.Transaction(func(tx *gorm.DB) error {
		record := domain.OrgMember{}
		err := tx.Where(&domain.OrgMember{OrgID: orgID, MemberID: u.MemberID}).First(&record).Error
		if err == nil {
			return tx.Model(&domain.OrgMember{}).
				Where(&domain.OrgMember{OrgID: orgID, MemberID: u.MemberID}).
				Update("role", u.Role).Error
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		record = domain.OrgMember{OrgID: orgID, MemberID: u.MemberID, Role: u.Role,
			CreateTime: types.CurrentTimestamp()}
		return tx.Create(&record).Error
	})
}

func RemoveOrgMember(orgID, memberID types.ID, sec *session.Session) error {
	if !sec.HasRole(domain.OrgRoleManager + "_" + orgID.String()) {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	return db.Where(&domain.OrgMember{OrgID: orgID, MemberID: memberID}).
		Delete(&domain.OrgMember{}).Error
}
