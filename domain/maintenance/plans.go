package maintenance

import (
	"context"
	"fmt"
	"time"

	"assetflow/authority"
	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/workorder"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	planIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreatePlanFunc  = CreatePlan
	QueryPlansFunc  = QueryPlans
	UpdatePlanFunc  = UpdatePlan
	DeletePlanFunc  = DeletePlan
	RunDuePlansFunc = RunDuePlans
)

type PlanCreation struct {
	OrgID   types.ID `json:"orgId" validate:"required"`
	AssetID types.ID `json:"assetId" validate:"required"`
	Name    string   `json:"name" validate:"required"`

	Description   string `json:"description"`
	FrequencyDays int    `json:"frequencyDays" validate:"required,min=1"`
}

type PlanUpdating struct {
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	FrequencyDays int    `json:"frequencyDays" validate:"required,min=1"`
	Active        bool   `json:"active"`
}

func CreatePlan(c *PlanCreation, sec *session.Session) (*domain.MaintenancePlan, error) {
	if !sec.HasRole(domain.OrgRoleManager+"_"+c.OrgID.String()) &&
		!sec.HasRole(domain.OrgRoleSupervisor+"_"+c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	now := types.CurrentTimestamp()
	record := domain.MaintenancePlan{
		ID: idgen.NextID(planIdWorker), OrgID: c.OrgID, AssetID: c.AssetID,
		Name: c.Name, Description: c.Description,
		FrequencyDays: c.FrequencyDays, Active: true,
		NextDueTime: types.Timestamp(now.Time().Add(time.Duration(c.FrequencyDays) * 24 * time.Hour)),
		CreateTime:  now,
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func QueryPlans(orgID types.ID, sec *session.Session) (*[]domain.MaintenancePlan, error) {
	if !sec.HasOrgViewPerm(orgID) {
		return nil, bizerror.ErrForbidden
	}
	var records []domain.MaintenancePlan
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.MaintenancePlan{OrgID: orgID}).Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

func UpdatePlan(id types.ID, u *PlanUpdating, sec *session.Session) (*domain.MaintenancePlan, error) {
	record := domain.MaintenancePlan{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.MaintenancePlan{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasRole(domain.OrgRoleManager+"_"+record.OrgID.String()) &&
		!sec.HasRole(domain.OrgRoleSupervisor+"_"+record.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	if err := db.Model(&domain.MaintenancePlan{}).Where(&domain.MaintenancePlan{ID: id}).
		Update(map[string]interface{}{
			"name": u.Name, "description": u.Description,
			"frequency_days": u.FrequencyDays, "active": u.Active,
		}).Error; err != nil {
		return nil, err
	}
	if err := db.Where(&domain.MaintenancePlan{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func DeletePlan(id types.ID, sec *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	record := domain.MaintenancePlan{}
	if err := db.Where(&domain.MaintenancePlan{ID: id}).First(&record).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil
		}
		return err
	}
	if !sec.HasRole(domain.OrgRoleManager + "_" + record.OrgID.String()) {
		return bizerror.ErrForbidden
	}
	return db.Delete(&domain.MaintenancePlan{ID: id}).Error
}

// planRobot acts on behalf of the scheduler, its org roles are widened
// per plan before creating the work order.
func planRobot(orgID types.ID) *session.Session {
	return &session.Session{
		Identity: session.Identity{ID: 20, Name: "maintenance-robot", Nickname: "maintenance-robot"},
		Perms:    authority.Permissions{domain.OrgRoleSupervisor + "_" + orgID.String()},
		OrgRoles: []domain.OrgRole{{OrgID: orgID, Role: domain.OrgRoleSupervisor}},
		Context:  context.Background(),
	}
}

// RunDuePlans creates a preventive work order for every active plan whose
// due time has passed, then pushes the due time forward. The due time
// update is guarded against concurrent runners.
func RunDuePlans() (int, error) {
	now := types.CurrentTimestamp()
	var plans []domain.MaintenancePlan
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	if err := db.Where("active = ? AND next_due_time <= ?", true, now).Find(&plans).Error; err != nil {
		return 0, err
	}

	created := 0
	for _, plan := range plans {
		q := db.Model(&domain.MaintenancePlan{}).
			Where("id = ? AND next_due_time = ?", plan.ID, plan.NextDueTime).
			Update(map[string]interface{}{
				"next_due_time": plan.NextDueTime.Time().Add(time.Duration(plan.FrequencyDays) * 24 * time.Hour),
				"last_run_time": now,
			})
		if q.Error != nil {
			logrus.Warnf("advance maintenance plan %d: %v", plan.ID, q.Error)
			continue
		}
		if q.RowsAffected != 1 {
			// another runner took this plan
			continue
		}

		creation := &workorder.WorkOrderCreation{
			OrgID: plan.OrgID, AssetID: plan.AssetID,
			Title:       fmt.Sprintf("[PM] %s", plan.Name),
			Description: plan.Description,
			Priority:    domain.PriorityMedium,
		}
		if _, err := workorder.CreateWorkOrderFunc(creation, planRobot(plan.OrgID)); err != nil {
			logrus.Warnf("create work order for maintenance plan %d: %v", plan.ID, err)
			continue
		}
		created++
	}
	return created, nil
}

func StartCron() {
	crontab := cron.New()
	crontab.AddFunc("@hourly", func() {
		count, err := RunDuePlansFunc()
		if err != nil {
			logrus.Errorf("run due maintenance plans: %v", err)
			return
		}
		if count > 0 {
			logrus.Infof("maintenance scheduler created %d work orders", count)
		}
	})
	crontab.Start()
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
