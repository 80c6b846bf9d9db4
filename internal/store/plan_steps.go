package store

import "github.com/google/uuid"

// BuildPlanSteps materializes an ordered set of pending steps for a project
// plan. Step indexes are 0-based and unique per project.
func BuildPlanSteps(projectID string, texts []string, now string) []ProjectStep {
	steps := make([]ProjectStep, 0, len(texts))
	for idx, text := range texts {
		steps = append(steps, ProjectStep{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			StepIndex: idx,
			Text:      text,
			Status:    StepStatusPending,
			UpdatedAt: now,
		})
	}
	return steps
}

// FirstUnfinishedStep returns the lowest-index step whose status is not done.
func FirstUnfinishedStep(steps []ProjectStep) (ProjectStep, bool) {
	for _, step := range steps {
		if step.Status != StepStatusDone {
			return step, true
		}
	}
	return ProjectStep{}, false
}

// NextActionAfter derives the next-action text once the step at doneIndex has
// completed: the first later unfinished step, or "Finalize project".
func NextActionAfter(steps []ProjectStep, doneIndex int) string {
	for _, step := range steps {
		if step.StepIndex <= doneIndex {
			continue
		}
		if step.Status != StepStatusDone {
			return step.Text
		}
	}
	return "Finalize project"
}
