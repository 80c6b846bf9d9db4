package workflows

import (
	"context"
	"errors"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

const (
	MaintenanceWorkflowID = "conductor:maintenance"
	// One cron tick per minute drives probing, scheduling and the fail-safe
	// sweep. Each step is idempotent, so a missed or doubled tick is safe.
	MaintenanceCron = "* * * * *"
)

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "conductor-maintenance"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// EnsureMaintenanceWorkflow starts the cron driver if it is not already
// running. A second start against a live cron workflow is not an error.
func (s *Service) EnsureMaintenanceWorkflow(ctx context.Context) error {
	options := client.StartWorkflowOptions{
		ID:           MaintenanceWorkflowID,
		TaskQueue:    s.taskQueue,
		CronSchedule: MaintenanceCron,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, MaintenanceWorkflow)
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &alreadyStarted) {
		return err
	}
	return nil
}

func (s *Service) StopMaintenanceWorkflow(ctx context.Context) error {
	return s.client.CancelWorkflow(ctx, MaintenanceWorkflowID, "")
}
