package workflows

import (
	"context"
	"time"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/protocols"
	"github.com/outpost-ops/conductor/internal/runtime"
	"github.com/outpost-ops/conductor/internal/store"
)

type ProbeOutput struct {
	Probed int `json:"probed"`
}

type ScheduleOutput struct {
	Executed int      `json:"executed"`
	Ran      []string `json:"ran,omitempty"`
}

type FailSafeOutput struct {
	Reason string `json:"reason,omitempty"`
}

// TickActivities holds the store-backed engines the maintenance workflow
// drives. The worker process registers one instance per task queue.
type TickActivities struct {
	store     store.Store
	scheduler *protocols.Scheduler
	watchdog  *runtime.Watchdog
	prober    *runtime.Prober
	targets   []runtime.ProbeTarget
}

func NewTickActivities(st store.Store, probeTimeout time.Duration, targets []runtime.ProbeTarget) *TickActivities {
	log := activity.NewLog(st, nil)
	engine := protocols.NewEngine(st, log)
	return &TickActivities{
		store:     st,
		scheduler: protocols.NewScheduler(st, engine, log),
		watchdog:  runtime.NewWatchdog(st, log),
		prober:    runtime.NewProber(st, probeTimeout),
		targets:   targets,
	}
}

func (a *TickActivities) ProbeRuntime(ctx context.Context) (ProbeOutput, error) {
	monitors, err := a.prober.ProbeAll(ctx, a.targets, time.Now().UTC())
	if err != nil {
		return ProbeOutput{}, err
	}
	return ProbeOutput{Probed: len(monitors)}, nil
}

func (a *TickActivities) RunDueSchedules(ctx context.Context) (ScheduleOutput, error) {
	result, err := a.scheduler.RunDueSchedules(ctx, time.Now().UTC())
	if err != nil {
		return ScheduleOutput{}, err
	}
	return ScheduleOutput{Executed: result.ExecutedCount, Ran: result.Executed}, nil
}

func (a *TickActivities) FailSafeSweep(ctx context.Context) (FailSafeOutput, error) {
	reason, err := a.watchdog.FailSafeTick(ctx, time.Now().UTC())
	if err != nil {
		return FailSafeOutput{}, err
	}
	return FailSafeOutput{Reason: reason}, nil
}
