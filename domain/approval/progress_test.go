package approval_test

import (
	"assetflow/domain"
	"assetflow/domain/approval"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classify", func() {
	var steps []domain.WorkflowTemplateStep

	BeforeEach(func() {
		steps = []domain.WorkflowTemplateStep{
			{ID: 10, StepOrder: 1, Name: "submit"},
			{ID: 20, StepOrder: 2, Name: "review"},
			{ID: 30, StepOrder: 3, Name: "execute"},
		}
	})

	Context("with the pointer on a middle step", func() {
		It("should split steps into completed, current and pending", func() {
			progress := approval.Classify(steps, types.ID(20))
			Expect(len(progress)).To(Equal(3))
			Expect(progress[0].Status).To(Equal(approval.StepStatusCompleted))
			Expect(progress[1].Status).To(Equal(approval.StepStatusCurrent))
			Expect(progress[2].Status).To(Equal(approval.StepStatusPending))
		})
	})

	Context("with the pointer on the first step", func() {
		It("should mark nothing completed", func() {
			progress := approval.Classify(steps, types.ID(10))
			Expect(progress[0].Status).To(Equal(approval.StepStatusCurrent))
			Expect(progress[1].Status).To(Equal(approval.StepStatusPending))
			Expect(progress[2].Status).To(Equal(approval.StepStatusPending))
		})
	})

	Context("with the pointer on the last step", func() {
		It("should mark all earlier steps completed", func() {
			progress := approval.Classify(steps, types.ID(30))
			Expect(progress[0].Status).To(Equal(approval.StepStatusCompleted))
			Expect(progress[1].Status).To(Equal(approval.StepStatusCompleted))
			Expect(progress[2].Status).To(Equal(approval.StepStatusCurrent))
		})
	})

	Context("with a pointer matching no step", func() {
		It("should mark every step pending", func() {
			progress := approval.Classify(steps, types.ID(404))
			for _, p := range progress {
				Expect(p.Status).To(Equal(approval.StepStatusPending))
			}
		})
	})

	Context("with no steps at all", func() {
		It("should return an empty classification", func() {
			Expect(approval.Classify(nil, types.ID(10))).To(BeEmpty())
		})
	})
})
