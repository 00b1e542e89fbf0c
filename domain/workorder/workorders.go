package workorder

import (
	"context"
	"errors"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/approval"
	"assetflow/domain/capability"
	"assetflow/domain/org"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	workOrderIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateWorkOrderFunc = CreateWorkOrder
	DetailWorkOrderFunc = DetailWorkOrder
	UpdateWorkOrderFunc = UpdateWorkOrder
	DeleteWorkOrderFunc = DeleteWorkOrder
	QueryWorkOrdersFunc = QueryWorkOrders
	LoadWorkOrdersFunc  = LoadWorkOrders
)

type WorkOrderCreation struct {
	OrgID types.ID `json:"orgId" validate:"required"`
	Title string   `json:"title" validate:"required"`

	Description string   `json:"description"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssetID     types.ID `json:"assetId"`
	AssigneeID  types.ID `json:"assigneeId"`
}

type WorkOrderUpdating struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssetID     types.ID `json:"assetId"`
	AssigneeID  types.ID `json:"assigneeId"`
}

func CreateWorkOrder(c *WorkOrderCreation, sec *session.Session) (*domain.WorkOrder, error) {
	if !sec.HasRoleSuffix("_" + c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	priority := c.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	record := domain.WorkOrder{
		ID: idgen.NextID(workOrderIdWorker), OrgID: c.OrgID,
		Title: c.Title, Description: c.Description,
		Status: domain.WorkOrderStatusOpen, Priority: priority,
		AssetID: c.AssetID, AssigneeID: c.AssigneeID, CreatorID: sec.Identity.ID,
		CreateTime: types.CurrentTimestamp(),
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		identifier, err := org.NextWorkOrderIdentifier(c.OrgID, tx)
		if err != nil {
			return err
		}
		record.Identifier = identifier
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	// the work order exists even when no workflow could attach or the
	// index write fails, both are recoverable afterwards
	if _, err := approval.InitializeWorkflowFunc(domain.EntityTypeWorkOrder, record.ID, record.OrgID, sec); err != nil {
		logrus.Warnf("attach workflow to work order %d: %v\n", record.ID, err)
	}
	if err := IndexWorkOrdersFunc([]domain.WorkOrder{record}); err != nil {
		logrus.Warnf("index work order %d: %v\n", record.ID, err)
	}
	return &record, nil
}

func DetailWorkOrder(id types.ID, sec *session.Session) (*domain.WorkOrder, error) {
	record := domain.WorkOrder{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.WorkOrder{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}
	return &record, nil
}

func UpdateWorkOrder(id types.ID, u *WorkOrderUpdating, sec *session.Session) (*domain.WorkOrder, error) {
	record := domain.WorkOrder{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&domain.WorkOrder{ID: id}).First(&record).Error; err != nil {
			return err
		}
		if err := checkEditPermission(&record, sec); err != nil {
			return err
		}
		if err := tx.Model(&domain.WorkOrder{}).Where(&domain.WorkOrder{ID: id}).
			Update(map[string]interface{}{
				"title": u.Title, "description": u.Description, "priority": u.Priority,
				"asset_id": u.AssetID, "assignee_id": u.AssigneeID,
			}).Error; err != nil {
			return err
		}
		return tx.Where(&domain.WorkOrder{ID: id}).First(&record).Error
	})
	if err != nil {
		return nil, err
	}

	if err := IndexWorkOrdersFunc([]domain.WorkOrder{record}); err != nil {
		logrus.Warnf("index work order %d: %v\n", record.ID, err)
	}
	return &record, nil
}

// checkEditPermission work orders under workflow control are guarded by
// step capabilities, the rest only needs org membership.
func checkEditPermission(record *domain.WorkOrder, sec *session.Session) error {
	caps, err := capability.ResolveEntityCapabilitiesFunc(domain.EntityTypeWorkOrder, record.ID, sec)
	if err != nil {
		return err
	}
	if caps.CanEdit() {
		return nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	state := domain.WorkflowState{}
	err = db.Where(&domain.WorkflowState{EntityType: domain.EntityTypeWorkOrder, EntityID: record.ID}).
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

func DeleteWorkOrder(id types.ID, sec *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		record := domain.WorkOrder{}
		if err := tx.Where(&domain.WorkOrder{ID: id}).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !sec.HasRole(domain.OrgRoleManager + "_" + record.OrgID.String()) {
			return bizerror.ErrForbidden
		}

		// approval records stay behind as audit trail
		if err := tx.Where(&domain.WorkflowState{EntityType: domain.EntityTypeWorkOrder, EntityID: id}).
			Delete(&domain.WorkflowState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("work_order_id = ?", id).Delete(&domain.WorkOrderAttachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.WorkOrder{ID: id}).Error
	})
	if err != nil {
		return err
	}

	if err := DeleteWorkOrderIndexFunc(id, sec); err != nil && !errors.Is(err, bizerror.ErrNotFound) {
		logrus.Warnf("delete work order index %d: %v\n", id, err)
	}
	return nil
}

func QueryWorkOrders(q *domain.WorkOrderQuery, sec *session.Session) (*[]domain.WorkOrder, error) {
	var records []domain.WorkOrder
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))

	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return &[]domain.WorkOrder{}, nil
	}

	query := db.Where(&domain.WorkOrder{OrgID: q.OrgID, Status: q.Status, Priority: q.Priority, AssetID: q.AssetID}).
		Where("org_id in (?)", visibleOrgs)
	if q.Title != "" {
		query = query.Where("title LIKE ?", "%"+q.Title+"%")
	}
	if err := query.Order("create_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

// LoadWorkOrders pages through all work orders, used by the index full
// sync robot.
func LoadWorkOrders(page, size int) ([]domain.WorkOrder, error) {
	var records []domain.WorkOrder
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	if err := db.Order("id ASC").Offset((page - 1) * size).Limit(size).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
