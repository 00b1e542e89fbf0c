package approval

import (
	"context"
	"errors"
	"strings"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/capability"
	"assetflow/domain/template"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	approvalIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	InitializeWorkflowFunc  = InitializeWorkflow
	ApproveFunc             = Approve
	RejectFunc              = Reject
	ReassignFunc            = Reassign
	EscalateFunc            = Escalate
	DetailWorkflowStateFunc = DetailWorkflowState
	ListApprovalRecordsFunc = ListApprovalRecords
)

type ApprovalDecision struct {
	Comments string `json:"comments"`
}

// WorkflowStateDetail is the workflow state joined with the per-step
// progress classification of its template.
type WorkflowStateDetail struct {
	domain.WorkflowState

	TemplateName string         `json:"templateName"`
	Steps        []StepProgress `json:"steps"`
}

// InitializeWorkflow attaches the default workflow of the entity's module
// to a freshly created entity. Organizations without a default template
// simply get no workflow: the degenerate (nil, nil) result.
func InitializeWorkflow(entityType domain.EntityType, entityID, orgID types.ID, sec *session.Session) (*domain.WorkflowState, error) {
	module, ok := domain.ModuleOf(entityType)
	if !ok {
		return nil, bizerror.ErrUnknownEntityType
	}

	tmpl, err := template.FindDefaultTemplateFunc(module, orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	first, found := tmpl.FindStepByOrder(1)
	if !found {
		return nil, bizerror.ErrInvalidStepOrder
	}

	now := types.CurrentTimestamp()
	state := domain.WorkflowState{
		ID:         idgen.NextID(approvalIdWorker),
		EntityType: entityType, EntityID: entityID, OrgID: orgID,
		TemplateID: tmpl.ID, CurrentStepID: first.ID,
		StepStartedAt: now, CreateTime: now,
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func Approve(stateID types.ID, d *ApprovalDecision, sec *session.Session) (*domain.ApprovalRecord, error) {
	var record *domain.ApprovalRecord
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		state, tmpl, cur, err := loadStateDetail(tx, stateID)
		if err != nil {
			return err
		}
		caps, err := capability.ResolveStepCapabilitiesFunc(cur.ID, sec)
		if err != nil {
			return err
		}
		if !caps.CanApprove() {
			return bizerror.ErrForbidden
		}

		if record, err = appendRecord(tx, state, cur.ID, domain.ActionApproved, d.Comments, sec); err != nil {
			return err
		}

		next, found := tmpl.FindStepByOrder(cur.StepOrder + 1)
		if !found {
			// final step approved, the pointer stays put
			return nil
		}
		if err := advancePointer(tx, state, cur.ID, next); err != nil {
			return err
		}
		return applyEntryStatus(tx, state, next)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func Reject(stateID types.ID, d *ApprovalDecision, sec *session.Session) (*domain.ApprovalRecord, error) {
	if strings.TrimSpace(d.Comments) == "" {
		return nil, bizerror.ErrCommentRequired
	}

	var record *domain.ApprovalRecord
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		state, tmpl, cur, err := loadStateDetail(tx, stateID)
		if err != nil {
			return err
		}
		caps, err := capability.ResolveStepCapabilitiesFunc(cur.ID, sec)
		if err != nil {
			return err
		}
		if !caps.CanReject() {
			return bizerror.ErrForbidden
		}

		if record, err = appendRecord(tx, state, cur.ID, domain.ActionRejected, d.Comments, sec); err != nil {
			return err
		}

		if cur.RejectTargetOrder == 0 {
			// no return target configured, the entity waits on the same
			// step for rework or reassignment
			return nil
		}
		target, found := tmpl.FindStepByOrder(cur.RejectTargetOrder)
		if !found {
			return bizerror.ErrStepNotInTemplate
		}
		if target.ID == cur.ID {
			return nil
		}
		if err := advancePointer(tx, state, cur.ID, target); err != nil {
			return err
		}
		return applyEntryStatus(tx, state, target)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func Reassign(stateID types.ID, d *ApprovalDecision, sec *session.Session) (*domain.ApprovalRecord, error) {
	return appendOnlyAction(stateID, domain.ActionReassigned, d, sec, func(caps capability.Capability) bool {
		return caps.CanAssign()
	})
}

func Escalate(stateID types.ID, d *ApprovalDecision, sec *session.Session) (*domain.ApprovalRecord, error) {
	return appendOnlyAction(stateID, domain.ActionEscalated, d, sec, func(caps capability.Capability) bool {
		return caps.CanEdit()
	})
}

// appendOnlyAction records an action against the current step without
// moving the step pointer.
func appendOnlyAction(stateID types.ID, action domain.ApprovalAction, d *ApprovalDecision,
	sec *session.Session, permitted func(capability.Capability) bool) (*domain.ApprovalRecord, error) {

	var record *domain.ApprovalRecord
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	err := db.Transaction(func(tx *gorm.DB) error {
		state, _, cur, err := loadStateDetail(tx, stateID)
		if err != nil {
			return err
		}
		caps, err := capability.ResolveStepCapabilitiesFunc(cur.ID, sec)
		if err != nil {
			return err
		}
		if !permitted(caps) {
			return bizerror.ErrForbidden
		}
		record, err = appendRecord(tx, state, cur.ID, action, d.Comments, sec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func DetailWorkflowState(entityType domain.EntityType, entityID types.ID, sec *session.Session) (*WorkflowStateDetail, error) {
	detail := WorkflowStateDetail{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.WorkflowState{EntityType: entityType, EntityID: entityID}).
		First(&detail.WorkflowState).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(detail.OrgID) {
		return nil, bizerror.ErrForbidden
	}

	tmpl := domain.WorkflowTemplate{}
	if err := db.Where(&domain.WorkflowTemplate{ID: detail.TemplateID}).First(&tmpl).Error; err != nil {
		return nil, err
	}
	detail.TemplateName = tmpl.Name

	var steps []domain.WorkflowTemplateStep
	if err := db.Where(&domain.WorkflowTemplateStep{TemplateID: detail.TemplateID}).
		Order("step_order ASC").Find(&steps).Error; err != nil {
		return nil, err
	}
	detail.Steps = Classify(steps, detail.CurrentStepID)
	return &detail, nil
}

func ListApprovalRecords(stateID types.ID, sec *session.Session) (*[]domain.ApprovalRecord, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	state := domain.WorkflowState{}
	if err := db.Where(&domain.WorkflowState{ID: stateID}).First(&state).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(state.OrgID) {
		return nil, bizerror.ErrForbidden
	}

	var records []domain.ApprovalRecord
	if err := db.Where(&domain.ApprovalRecord{WorkflowStateID: stateID}).
		Order("create_time DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

func loadStateDetail(tx *gorm.DB, stateID types.ID) (
	*domain.WorkflowState, *domain.WorkflowTemplateDetail, domain.WorkflowTemplateStep, error) {

	state := domain.WorkflowState{}
	cur := domain.WorkflowTemplateStep{}
	if err := tx.Where(&domain.WorkflowState{ID: stateID}).First(&state).Error; err != nil {
		return nil, nil, cur, err
	}

	tmpl := domain.WorkflowTemplateDetail{}
	if err := tx.Where(&domain.WorkflowTemplate{ID: state.TemplateID}).First(&tmpl.WorkflowTemplate).Error; err != nil {
		return nil, nil, cur, err
	}
	if err := tx.Where(&domain.WorkflowTemplateStep{TemplateID: state.TemplateID}).
		Order("step_order ASC").Find(&tmpl.Steps).Error; err != nil {
		return nil, nil, cur, err
	}

	cur, found := tmpl.FindStep(state.CurrentStepID)
	if !found {
		return nil, nil, cur, bizerror.ErrStepNotInTemplate
	}
	return &state, &tmpl, cur, nil
}

// advancePointer moves the step pointer with an observed-value guard:
// the update only lands when the pointer still holds the step the caller
// acted on, a lost race surfaces as ErrStaleWorkflowState and rolls the
// transaction back.
func advancePointer(tx *gorm.DB, state *domain.WorkflowState, observedStepID types.ID, next domain.WorkflowTemplateStep) error {
	q := tx.Model(&domain.WorkflowState{}).
		Where(&domain.WorkflowState{ID: state.ID, CurrentStepID: observedStepID}).
		Update(map[string]interface{}{"current_step_id": next.ID, "step_started_at": types.CurrentTimestamp()})
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected != 1 {
		return bizerror.ErrStaleWorkflowState
	}
	return nil
}

// applyEntryStatus pushes the entry status of the entered step onto the
// owning entity, when the step declares one.
func applyEntryStatus(tx *gorm.DB, state *domain.WorkflowState, entered domain.WorkflowTemplateStep) error {
	if entered.EntryStatus == "" {
		return nil
	}
	switch state.EntityType {
	case domain.EntityTypeWorkOrder:
		return tx.Model(&domain.WorkOrder{}).Where(&domain.WorkOrder{ID: state.EntityID}).
			Update("status", entered.EntryStatus).Error
	case domain.EntityTypeIncident:
		return tx.Model(&domain.Incident{}).Where(&domain.Incident{ID: state.EntityID}).
			Update("status", entered.EntryStatus).Error
	}
	return nil
}

func appendRecord(tx *gorm.DB, state *domain.WorkflowState, stepID types.ID,
	action domain.ApprovalAction, comments string, sec *session.Session) (*domain.ApprovalRecord, error) {

	record := domain.ApprovalRecord{
		ID:              idgen.NextID(approvalIdWorker),
		WorkflowStateID: state.ID,
		EntityType:      state.EntityType, EntityID: state.EntityID,
		StepID: stepID, Action: action, Comments: comments,
		ActorID: sec.Identity.ID, ActorName: sec.Identity.Nickname,
		CreateTime: types.CurrentTimestamp(),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
