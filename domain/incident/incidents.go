package incident

import (
	"context"
	"errors"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/approval"
	"assetflow/domain/capability"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	incidentIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateIncidentFunc = CreateIncident
	DetailIncidentFunc = DetailIncident
	UpdateIncidentFunc = UpdateIncident
	QueryIncidentsFunc = QueryIncidents
)

type IncidentCreation struct {
	OrgID types.ID `json:"orgId" validate:"required"`
	Title string   `json:"title" validate:"required"`

	Description string   `json:"description"`
	Severity    string   `json:"severity" validate:"required,oneof=minor moderate major critical"`
	AssetID     types.ID `json:"assetId"`
}

type IncidentUpdating struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Severity    string `json:"severity" validate:"required,oneof=minor moderate major critical"`
}

func CreateIncident(c *IncidentCreation, sec *session.Session) (*domain.Incident, error) {
	if !sec.HasRoleSuffix("_" + c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	record := domain.Incident{
		ID: idgen.NextID(incidentIdWorker), OrgID: c.OrgID,
		Title: c.Title, Description: c.Description, Severity: c.Severity,
		Status: domain.IncidentStatusReported,
		AssetID: c.AssetID, ReporterID: sec.Identity.ID,
		CreateTime: types.CurrentTimestamp(),
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&record).Error; err != nil {
		return nil, err
	}

	if _, err := approval.InitializeWorkflowFunc(domain.EntityTypeIncident, record.ID, record.OrgID, sec); err != nil {
		logrus.Warnf("attach workflow to incident %d: %v\n", record.ID, err)
	}
	return &record, nil
}

func DetailIncident(id types.ID, sec *session.Session) (*domain.Incident, error) {
	record := domain.Incident{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.Incident{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}
	return &record, nil
}

func UpdateIncident(id types.ID, u *IncidentUpdating, sec *session.Session) (*domain.Incident, error) {
	record := domain.Incident{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.Incident{ID: id}).First(&record).Error; err != nil {
			return err
		}
		if err := checkEditPermission(&record, sec); err != nil {
			return err
		}
		if err := tx.Model(&domain.Incident{}).Where(&domain.Incident{ID: id}).
			Update(map[string]interface{}{
				"title": u.Title, "description": u.Description, "severity": u.Severity,
			}).Error; err != nil {
			return err
		}
		return tx.Where(&domain.Incident{ID: id}).First(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func checkEditPermission(record *domain.Incident, sec *session.Session) error {
	caps, err := capability.ResolveEntityCapabilitiesFunc(domain.EntityTypeIncident, record.ID, sec)
	if err != nil {
		return err
	}
	if caps.CanEdit() {
		return nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	state := domain.WorkflowState{}
	err = db.Where(&domain.WorkflowState{EntityType: domain.EntityTypeIncident, EntityID: record.ID}).
		First(&state).Error
	if err == nil {
		return bizerror.ErrForbidden
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if !sec.HasRoleSuffix("_" + record.OrgID.String()) {
		return bizerror.ErrForbidden
	}
	return nil
}

func QueryIncidents(q *domain.IncidentQuery, sec *session.Session) (*[]domain.Incident, error) {
	var records []domain.Incident
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))

	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return &[]domain.Incident{}, nil
	}
	query := db.Where(&domain.Incident{OrgID: q.OrgID, Severity: q.Severity, Status: q.Status}).
		Where("org_id in (?)", visibleOrgs)
	if err := query.Order("create_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
