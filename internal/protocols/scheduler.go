package protocols

import (
	"context"
	"time"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
)

// Scheduler decides, once per tick, which schedule-enabled protocols are due
// and hands them to the run engine. It never double-fires a weekly slot.
type Scheduler struct {
	store  store.Store
	engine *Engine
	log    *activity.Log
}

func NewScheduler(st store.Store, engine *Engine, log *activity.Log) *Scheduler {
	return &Scheduler{store: st, engine: engine, log: log}
}

type TickResult struct {
	ExecutedCount int      `json:"executedCount"`
	Executed      []string `json:"executed"`
}

func (s *Scheduler) RunDueSchedules(ctx context.Context, now time.Time) (TickResult, error) {
	items, err := s.store.ListProtocols(ctx)
	if err != nil {
		return TickResult{}, err
	}
	result := TickResult{Executed: []string{}}
	for _, protocol := range items {
		if !protocol.Active || protocol.Trigger != TriggerSchedule || !protocol.ScheduleEnabled {
			continue
		}

		due := false
		slot := now.UTC().Format(time.RFC3339Nano)

		if protocol.ScheduleMode == store.ScheduleModeWeekly {
			clock := localize(now, protocol.ScheduleTimezone)
			weekday := normalizeWeekday(protocol.ScheduleWeekday)
			timeOfDay := normalizeTimeOfDay(protocol.ScheduleTime)
			if clock.weekday == weekday {
				diff := clock.minuteOfDay - targetMinuteOfDay(timeOfDay)
				if diff >= 0 && diff < firingWindowMinutes {
					slot = weeklySlot(clock, weekday, timeOfDay, normalizeTimezone(protocol.ScheduleTimezone))
					due = protocol.LastScheduledSlot != slot
				}
			}
		} else {
			interval := ClampInterval(protocol.ScheduleIntervalMinutes)
			last, parseErr := time.Parse(time.RFC3339Nano, protocol.LastScheduledRunAt)
			due = parseErr != nil || now.Sub(last) >= time.Duration(interval)*time.Minute
		}

		if !due {
			continue
		}

		// Recurring protocols that require approval never self-execute.
		if protocol.ApprovalsRequired {
			if _, err := s.log.Append(ctx, "protocol_schedule_skipped", "protocol", protocol.ID, map[string]any{
				"protocolId": protocol.ID,
				"reason":     "approval_required",
			}, now); err != nil {
				return TickResult{}, err
			}
			continue
		}

		if _, err := s.engine.Run(ctx, protocol.ID, RunParams{
			ApprovalGranted: true,
			ProvidedInputs:  []string{},
			Source:          SourceScheduled,
		}, now); err != nil {
			return TickResult{}, err
		}

		updated := protocol
		updated.LastScheduledRunAt = now.UTC().Format(time.RFC3339Nano)
		updated.LastScheduledSlot = slot
		updated.UpdatedAt = updated.LastScheduledRunAt
		if err := s.store.UpdateProtocol(ctx, updated); err != nil {
			return TickResult{}, err
		}

		result.Executed = append(result.Executed, protocol.ID)
		result.ExecutedCount++
	}
	return result, nil
}
