package approval

import (
	"assetflow/domain"

	"github.com/fundwit/go-commons/types"
)

type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusCurrent   StepStatus = "current"
	StepStatusPending   StepStatus = "pending"
)

type StepProgress struct {
	domain.WorkflowTemplateStep

	Status StepStatus `json:"status"`
}

// Classify labels each step of an ordered step list relative to the
// current step pointer: earlier orders are completed, the pointed step is
// current, later orders are pending. A pointer that matches no step marks
// everything pending.
func Classify(steps []domain.WorkflowTemplateStep, currentStepID types.ID) []StepProgress {
	currentOrder := -1
	for _, s := range steps {
		if s.ID == currentStepID {
			currentOrder = s.StepOrder
			break
		}
	}

	progress := make([]StepProgress, 0, len(steps))
	for _, s := range steps {
		status := StepStatusPending
		if currentOrder >= 0 {
			if s.ID == currentStepID {
				status = StepStatusCurrent
			} else if s.StepOrder < currentOrder {
				status = StepStatusCompleted
			}
		}
		progress = append(progress, StepProgress{WorkflowTemplateStep: s, Status: status})
	}
	return progress
}
