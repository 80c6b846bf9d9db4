package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type MaintenanceResult struct {
	Probed        int    `json:"probed"`
	Executed      int    `json:"executed"`
	FailSafeReset string `json:"fail_safe_reset,omitempty"`
}

// MaintenanceWorkflow is one cron tick of the periodic driver: probe
// dependency health, fire due protocol schedules, then sweep the fail-safe.
// The order matters — the sweep reads the monitor rows the probe just wrote.
func MaintenanceWorkflow(ctx workflow.Context) (MaintenanceResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 45 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)
	result := MaintenanceResult{}

	probeResult := ProbeOutput{}
	if err := workflow.ExecuteActivity(ctx, "ProbeRuntime").Get(ctx, &probeResult); err != nil {
		logger.Error("runtime probe failed", "error", err)
	} else {
		result.Probed = probeResult.Probed
	}

	scheduleResult := ScheduleOutput{}
	if err := workflow.ExecuteActivity(ctx, "RunDueSchedules").Get(ctx, &scheduleResult); err != nil {
		logger.Error("schedule tick failed", "error", err)
	} else {
		result.Executed = scheduleResult.Executed
		if scheduleResult.Executed > 0 {
			logger.Info("executed due schedules", "count", scheduleResult.Executed)
		}
	}

	failSafeResult := FailSafeOutput{}
	if err := workflow.ExecuteActivity(ctx, "FailSafeSweep").Get(ctx, &failSafeResult); err != nil {
		logger.Error("fail-safe sweep failed", "error", err)
	} else if failSafeResult.Reason != "" {
		result.FailSafeReset = failSafeResult.Reason
		logger.Info("processing flag reset", "reason", failSafeResult.Reason)
	}

	return result, nil
}
