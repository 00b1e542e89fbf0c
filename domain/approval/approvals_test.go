package approval_test

import (
	"context"
	"testing"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/approval"
	"assetflow/domain/capability"
	"assetflow/domain/template"
	"assetflow/persistence"
	"assetflow/session"
	"assetflow/testinfra"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("assetflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&domain.WorkflowTemplate{}, &domain.WorkflowTemplateStep{},
		&domain.WorkflowStepRoleAssignment{}, &domain.WorkflowState{},
		&domain.ApprovalRecord{}, &domain.WorkOrder{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

type fixture struct {
	template  *domain.WorkflowTemplateDetail
	workOrder *domain.WorkOrder
	state     *domain.WorkflowState
}

// prepareWorkOrderFlow builds a three step default template for org 1,
// assigns supervisor approve/reject on every step, creates a work order
// and attaches its workflow.
func prepareWorkOrderFlow(t *testing.T, db *testinfra.TestDatabase) *fixture {
	manager := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
	created, err := template.CreateTemplate(&template.TemplateCreation{
		Name: "work order approval", Module: domain.ModuleWorkOrders, OrgID: types.ID(1), IsDefault: true,
		Steps: []template.StepCreation{
			{Name: "submit", StepOrder: 1, EntryStatus: domain.WorkOrderStatusOpen},
			{Name: "review", StepOrder: 2, EntryStatus: domain.WorkOrderStatusInReview, RejectTargetOrder: 1},
			{Name: "execute", StepOrder: 3, EntryStatus: domain.WorkOrderStatusInProgress},
		},
	}, manager)
	assert.Nil(t, err)
	for _, s := range created.Steps {
		_, err = template.CreateStepRoleAssignment(s.ID, &template.StepRoleAssignmentCreation{
			Role: domain.OrgRoleSupervisor, CanApprove: true, CanReject: true, CanAssign: true}, manager)
		assert.Nil(t, err)
	}

	workOrder := domain.WorkOrder{ID: 600, Identifier: "WO-1", OrgID: 1, Title: "replace pump seal",
		Status: domain.WorkOrderStatusOpen, CreateTime: types.CurrentTimestamp()}
	assert.Nil(t, db.DS.GormDB(context.Background()).Create(&workOrder).Error)

	state, err := approval.InitializeWorkflow(domain.EntityTypeWorkOrder, workOrder.ID, types.ID(1), manager)
	assert.Nil(t, err)
	assert.NotNil(t, state)
	return &fixture{template: created, workOrder: &workOrder, state: state}
}

func supervisor() *session.Session {
	return testinfra.BuildSession(200, domain.OrgRoleSupervisor+"_1")
}

func TestInitializeWorkflow(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should reject unknown entity types", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := approval.InitializeWorkflow("pump", types.ID(1), types.ID(1), supervisor())
		Expect(err).To(Equal(bizerror.ErrUnknownEntityType))
	})

	t.Run("should return nothing when the org has no default template", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		state, err := approval.InitializeWorkflow(domain.EntityTypeWorkOrder, types.ID(1), types.ID(9), supervisor())
		Expect(err).To(BeNil())
		Expect(state).To(BeNil())
	})

	t.Run("should create workflow state at the first step", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		Expect(f.state.EntityType).To(Equal(domain.EntityTypeWorkOrder))
		Expect(f.state.EntityID).To(Equal(f.workOrder.ID))
		Expect(f.state.TemplateID).To(Equal(f.template.ID))
		Expect(f.state.CurrentStepID).To(Equal(f.template.Steps[0].ID))

		var states []domain.WorkflowState
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.WorkflowState{}).Scan(&states).Error).To(BeNil())
		Expect(len(states)).To(Equal(1))
	})
}

func TestApprove(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should forbid callers without approve capability", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{}, testinfra.BuildSession(300, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		_, err = approval.Approve(f.state.ID, &approval.ApprovalDecision{}, testinfra.BuildSession(300, domain.OrgRoleSupervisor+"_2"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should advance the pointer and push the entry status", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		record, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{Comments: "looks fine"}, supervisor())
		Expect(err).To(BeNil())
		Expect(record.Action).To(Equal(domain.ActionApproved))
		Expect(record.StepID).To(Equal(f.template.Steps[0].ID))
		Expect(record.ActorID).To(Equal(types.ID(200)))

		db := testDatabase.DS.GormDB(context.Background())
		state := domain.WorkflowState{}
		Expect(db.Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[1].ID))
		Expect(state.StepStartedAt.Time().After(f.state.StepStartedAt.Time())).To(BeTrue())

		workOrder := domain.WorkOrder{}
		Expect(db.Where(&domain.WorkOrder{ID: f.workOrder.ID}).First(&workOrder).Error).To(BeNil())
		Expect(workOrder.Status).To(Equal(domain.WorkOrderStatusInReview))
	})

	t.Run("should fail and hold the pointer when the record cannot be written", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.DropTable(&domain.ApprovalRecord{}).Error).To(BeNil())

		record, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{}, supervisor())
		Expect(err).ToNot(BeNil())
		Expect(record).To(BeNil())

		state := domain.WorkflowState{}
		Expect(db.Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[0].ID))

		workOrder := domain.WorkOrder{}
		Expect(db.Where(&domain.WorkOrder{ID: f.workOrder.ID}).First(&workOrder).Error).To(BeNil())
		Expect(workOrder.Status).To(Equal(domain.WorkOrderStatusOpen))
	})

	t.Run("should keep the pointer on the final step", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		d := &approval.ApprovalDecision{}
		_, err := approval.Approve(f.state.ID, d, supervisor())
		Expect(err).To(BeNil())
		_, err = approval.Approve(f.state.ID, d, supervisor())
		Expect(err).To(BeNil())
		_, err = approval.Approve(f.state.ID, d, supervisor())
		Expect(err).To(BeNil())

		state := domain.WorkflowState{}
		Expect(testDatabase.DS.GormDB(context.Background()).
			Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[2].ID))

		var records []domain.ApprovalRecord
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.ApprovalRecord{}).Scan(&records).Error).To(BeNil())
		Expect(len(records)).To(Equal(3))
	})

	t.Run("should surface a stale pointer as a conflict", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)
		defer func() { capability.ResolveStepCapabilitiesFunc = capability.ResolveStepCapabilities }()

		// a concurrent actor moves the pointer after this transaction
		// observed the current step
		capability.ResolveStepCapabilitiesFunc = func(stepID types.ID, sec *session.Session) (capability.Capability, error) {
			err := testDatabase.DS.GormDB(context.Background()).Model(&domain.WorkflowState{}).
				Where(&domain.WorkflowState{ID: f.state.ID}).
				Update("current_step_id", f.template.Steps[1].ID).Error
			Expect(err).To(BeNil())
			return capability.CapApprove, nil
		}

		_, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{}, supervisor())
		Expect(err).To(Equal(bizerror.ErrStaleWorkflowState))

		// the approval record of the lost race must have rolled back
		var count int
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.ApprovalRecord{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(0))
	})
}

func TestReject(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should require a comment", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := approval.Reject(types.ID(1), &approval.ApprovalDecision{Comments: "   "}, supervisor())
		Expect(err).To(Equal(bizerror.ErrCommentRequired))
	})

	t.Run("should return to the configured reject target", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{}, supervisor())
		Expect(err).To(BeNil())

		record, err := approval.Reject(f.state.ID, &approval.ApprovalDecision{Comments: "missing safety checklist"}, supervisor())
		Expect(err).To(BeNil())
		Expect(record.Action).To(Equal(domain.ActionRejected))

		db := testDatabase.DS.GormDB(context.Background())
		state := domain.WorkflowState{}
		Expect(db.Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[0].ID))

		workOrder := domain.WorkOrder{}
		Expect(db.Where(&domain.WorkOrder{ID: f.workOrder.ID}).First(&workOrder).Error).To(BeNil())
		Expect(workOrder.Status).To(Equal(domain.WorkOrderStatusOpen))
	})

	t.Run("should hold the step when no reject target is configured", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		record, err := approval.Reject(f.state.ID, &approval.ApprovalDecision{Comments: "wrong asset"}, supervisor())
		Expect(err).To(BeNil())
		Expect(record.StepID).To(Equal(f.template.Steps[0].ID))

		state := domain.WorkflowState{}
		Expect(testDatabase.DS.GormDB(context.Background()).
			Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[0].ID))
	})
}

func TestReassignAndEscalate(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should record reassignment without moving the pointer", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		record, err := approval.Reassign(f.state.ID, &approval.ApprovalDecision{Comments: "handing to night shift"}, supervisor())
		Expect(err).To(BeNil())
		Expect(record.Action).To(Equal(domain.ActionReassigned))

		state := domain.WorkflowState{}
		Expect(testDatabase.DS.GormDB(context.Background()).
			Where(&domain.WorkflowState{ID: f.state.ID}).First(&state).Error).To(BeNil())
		Expect(state.CurrentStepID).To(Equal(f.template.Steps[0].ID))
	})

	t.Run("should forbid reassignment without assign capability", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.Reassign(f.state.ID, &approval.ApprovalDecision{}, testinfra.BuildSession(300, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should allow escalation with any step capability", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		record, err := approval.Escalate(f.state.ID, &approval.ApprovalDecision{Comments: "sla breached"}, supervisor())
		Expect(err).To(BeNil())
		Expect(record.Action).To(Equal(domain.ActionEscalated))

		_, err = approval.Escalate(f.state.ID, &approval.ApprovalDecision{}, testinfra.BuildSession(300, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})
}

func TestDetailWorkflowState(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should classify step progress around the current step", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{}, supervisor())
		Expect(err).To(BeNil())

		detail, err := approval.DetailWorkflowState(domain.EntityTypeWorkOrder, f.workOrder.ID, supervisor())
		Expect(err).To(BeNil())
		Expect(detail.TemplateName).To(Equal("work order approval"))
		Expect(len(detail.Steps)).To(Equal(3))
		Expect(detail.Steps[0].Status).To(Equal(approval.StepStatusCompleted))
		Expect(detail.Steps[1].Status).To(Equal(approval.StepStatusCurrent))
		Expect(detail.Steps[2].Status).To(Equal(approval.StepStatusPending))
	})

	t.Run("should forbid viewers outside the org", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.DetailWorkflowState(domain.EntityTypeWorkOrder, f.workOrder.ID,
			testinfra.BuildSession(300, domain.OrgRoleSupervisor+"_2"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})
}

func TestListApprovalRecords(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should list records most recent first", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		f := prepareWorkOrderFlow(t, testDatabase)

		_, err := approval.Approve(f.state.ID, &approval.ApprovalDecision{Comments: "first"}, supervisor())
		Expect(err).To(BeNil())
		_, err = approval.Reject(f.state.ID, &approval.ApprovalDecision{Comments: "second"}, supervisor())
		Expect(err).To(BeNil())

		records, err := approval.ListApprovalRecords(f.state.ID, supervisor())
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(2))
		Expect((*records)[0].Action).To(Equal(domain.ActionRejected))
		Expect((*records)[1].Action).To(Equal(domain.ActionApproved))
	})
}
