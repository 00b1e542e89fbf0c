package template_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/template"
	"assetflow/persistence"
	"assetflow/testinfra"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("assetflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&domain.WorkflowTemplate{}, &domain.WorkflowTemplateStep{},
		&domain.WorkflowStepRoleAssignment{}, &domain.WorkflowState{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func buildCreationDemo() *template.TemplateCreation {
	return &template.TemplateCreation{
		Name: "work order approval", Module: domain.ModuleWorkOrders, OrgID: types.ID(1), IsDefault: true,
		Steps: []template.StepCreation{
			{Name: "submit", StepOrder: 1, EntryStatus: domain.WorkOrderStatusOpen},
			{Name: "review", StepOrder: 2, EntryStatus: domain.WorkOrderStatusInReview, RejectTargetOrder: 1},
			{Name: "execute", StepOrder: 3, EntryStatus: domain.WorkOrderStatusInProgress},
		},
	}
}

func TestCreateTemplate(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should forbid creating templates for other orgs", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		detail, err := template.CreateTemplate(buildCreationDemo(), testinfra.BuildSession(100, domain.OrgRoleManager+"_2"))
		Expect(detail).To(BeNil())
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should reject step orders with gaps or duplicates", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")

		creation := buildCreationDemo()
		creation.Steps[2].StepOrder = 5
		_, err := template.CreateTemplate(creation, sec)
		Expect(err).To(Equal(bizerror.ErrInvalidStepOrder))

		creation = buildCreationDemo()
		creation.Steps[1].StepOrder = 1
		_, err = template.CreateTemplate(creation, sec)
		Expect(err).To(Equal(bizerror.ErrInvalidStepOrder))

		creation = buildCreationDemo()
		creation.Steps[0].RejectTargetOrder = 9
		_, err = template.CreateTemplate(creation, sec)
		Expect(err).To(Equal(bizerror.ErrInvalidStepOrder))
	})

	t.Run("should persist template with ordered steps", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		detail, err := template.CreateTemplate(buildCreationDemo(), testinfra.BuildSession(100, domain.OrgRoleManager+"_1"))
		Expect(err).To(BeNil())
		Expect(detail.Name).To(Equal("work order approval"))
		Expect(detail.Module).To(Equal(domain.ModuleWorkOrders))
		Expect(detail.Version).To(Equal(1))
		Expect(detail.IsDefault).To(BeTrue())
		Expect(detail.IsActive).To(BeTrue())
		Expect(len(detail.Steps)).To(Equal(3))

		var steps []domain.WorkflowTemplateStep
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.WorkflowTemplateStep{}).
			Order("step_order ASC").Scan(&steps).Error).To(BeNil())
		Expect(len(steps)).To(Equal(3))
		Expect(steps[0].Name).To(Equal("submit"))
		Expect(steps[0].TemplateID).To(Equal(detail.ID))
		Expect(steps[1].RejectTargetOrder).To(Equal(1))
		Expect(steps[2].EntryStatus).To(Equal(domain.WorkOrderStatusInProgress))
	})

	t.Run("should refuse a second default template of the same module and org", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		_, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())

		_, err = template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(Equal(bizerror.ErrDefaultTemplateExists))

		// a non-default sibling is still fine
		creation := buildCreationDemo()
		creation.IsDefault = false
		_, err = template.CreateTemplate(creation, sec)
		Expect(err).To(BeNil())
	})

	t.Run("should keep a single default under concurrent creation", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		var wg sync.WaitGroup
		var succeeded int32
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := template.CreateTemplate(buildCreationDemo(), sec); err == nil {
					atomic.AddInt32(&succeeded, 1)
				}
			}()
		}
		wg.Wait()
		Expect(succeeded).To(Equal(int32(1)))

		var count int
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.WorkflowTemplate{}).
			Where("is_default = ?", true).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(1))
	})
}

func TestFindDefaultTemplate(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should return record not found when org has no default", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := template.FindDefaultTemplate(domain.ModuleWorkOrders, types.ID(404))
		Expect(err).ToNot(BeNil())
		Expect(err.Error()).To(Equal("record not found"))
	})

	t.Run("should resolve the default template with its steps", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())

		detail, err := template.FindDefaultTemplate(domain.ModuleWorkOrders, types.ID(1))
		Expect(err).To(BeNil())
		Expect(detail.ID).To(Equal(created.ID))
		Expect(len(detail.Steps)).To(Equal(3))
		Expect(detail.Steps[0].StepOrder).To(Equal(1))

		// served from cache after the first lookup
		Expect(testDatabase.DS.GormDB(context.Background()).
			Delete(&domain.WorkflowTemplate{ID: created.ID}).Error).To(BeNil())
		detail, err = template.FindDefaultTemplate(domain.ModuleWorkOrders, types.ID(1))
		Expect(err).To(BeNil())
		Expect(detail.ID).To(Equal(created.ID))
	})
}

func TestDeleteTemplate(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should refuse to delete a referenced template", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())

		state := domain.WorkflowState{ID: 500, EntityType: domain.EntityTypeWorkOrder, EntityID: 600,
			OrgID: 1, TemplateID: created.ID, CurrentStepID: created.Steps[0].ID}
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&state).Error).To(BeNil())

		Expect(template.DeleteTemplate(created.ID, sec)).To(Equal(bizerror.ErrTemplateIsReferenced))
	})

	t.Run("should delete template with steps and role assignments", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())
		_, err = template.CreateStepRoleAssignment(created.Steps[1].ID,
			&template.StepRoleAssignmentCreation{Role: domain.OrgRoleSupervisor, CanApprove: true}, sec)
		Expect(err).To(BeNil())

		Expect(template.DeleteTemplate(created.ID, sec)).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		var count int
		Expect(db.Model(&domain.WorkflowTemplate{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(0))
		Expect(db.Model(&domain.WorkflowTemplateStep{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(0))
		Expect(db.Model(&domain.WorkflowStepRoleAssignment{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(0))
	})
}

func TestReplaceSteps(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should replace steps and bump the template version", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())

		detail, err := template.ReplaceSteps(created.ID, []template.StepCreation{
			{Name: "triage", StepOrder: 1},
			{Name: "close", StepOrder: 2},
		}, sec)
		Expect(err).To(BeNil())
		Expect(len(detail.Steps)).To(Equal(2))

		var steps []domain.WorkflowTemplateStep
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&domain.WorkflowTemplateStep{}).
			Order("step_order ASC").Scan(&steps).Error).To(BeNil())
		Expect(len(steps)).To(Equal(2))
		Expect(steps[0].Name).To(Equal("triage"))

		record := domain.WorkflowTemplate{}
		Expect(testDatabase.DS.GormDB(context.Background()).
			Where(&domain.WorkflowTemplate{ID: created.ID}).First(&record).Error).To(BeNil())
		Expect(record.Version).To(Equal(2))
	})

	t.Run("should refuse to replace steps of a referenced template", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), sec)
		Expect(err).To(BeNil())

		state := domain.WorkflowState{ID: 500, EntityType: domain.EntityTypeWorkOrder, EntityID: 600,
			OrgID: 1, TemplateID: created.ID, CurrentStepID: created.Steps[0].ID}
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&state).Error).To(BeNil())

		_, err = template.ReplaceSteps(created.ID, []template.StepCreation{{Name: "triage", StepOrder: 1}}, sec)
		Expect(err).To(Equal(bizerror.ErrTemplateIsReferenced))
	})
}

func TestStepRoleAssignments(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should manage role assignments under org manager permission", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		manager := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")
		viewer := testinfra.BuildSession(200, domain.OrgRoleTechnician+"_1")
		created, err := template.CreateTemplate(buildCreationDemo(), manager)
		Expect(err).To(BeNil())
		stepID := created.Steps[1].ID

		_, err = template.CreateStepRoleAssignment(stepID,
			&template.StepRoleAssignmentCreation{Role: domain.OrgRoleSupervisor, CanApprove: true, CanReject: true}, viewer)
		Expect(err).To(Equal(bizerror.ErrForbidden))

		assignment, err := template.CreateStepRoleAssignment(stepID,
			&template.StepRoleAssignmentCreation{Role: domain.OrgRoleSupervisor, CanApprove: true, CanReject: true}, manager)
		Expect(err).To(BeNil())
		Expect(assignment.StepID).To(Equal(stepID))

		assignments, err := template.ListStepRoleAssignments(stepID, viewer)
		Expect(err).To(BeNil())
		Expect(len(*assignments)).To(Equal(1))
		Expect((*assignments)[0].Role).To(Equal(domain.OrgRoleSupervisor))

		Expect(template.DeleteStepRoleAssignment(assignment.ID, viewer)).To(Equal(bizerror.ErrForbidden))
		Expect(template.DeleteStepRoleAssignment(assignment.ID, manager)).To(BeNil())
		assignments, err = template.ListStepRoleAssignments(stepID, manager)
		Expect(err).To(BeNil())
		Expect(len(*assignments)).To(Equal(0))
	})
}
