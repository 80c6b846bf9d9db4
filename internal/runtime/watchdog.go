package runtime

import (
	"context"
	"time"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
)

// ProcessingKeyGateway is the subject key for the agent gateway's busy flag.
const ProcessingKeyGateway = "gateway"

// MonitorKeyGateway is the monitor row the fail-safe consults for gateway health.
const MonitorKeyGateway = "gateway"

const (
	minTimeoutSeconds = 10
	maxTimeoutSeconds = 3600
)

const (
	ResetReasonTimeout        = "failsafe_timeout"
	ResetReasonGatewayOffline = "failsafe_gateway_offline"
)

// Watchdog owns the processing flag lifecycle: anything that flips the flag
// on must either flip it off or be reset by the fail-safe sweep.
type Watchdog struct {
	store store.Store
	log   *activity.Log
}

func NewWatchdog(st store.Store, log *activity.Log) *Watchdog {
	return &Watchdog{store: st, log: log}
}

// SetProcessing upserts the busy flag for a subject key. Turning the flag on
// stamps an absolute deadline so a crashed agent cannot hold it forever.
func (w *Watchdog) SetProcessing(ctx context.Context, key string, processing bool, reason string, timeoutSeconds int, now time.Time) (store.ProcessingState, error) {
	if key == "" {
		key = ProcessingKeyGateway
	}
	if timeoutSeconds < minTimeoutSeconds {
		timeoutSeconds = minTimeoutSeconds
	}
	if timeoutSeconds > maxTimeoutSeconds {
		timeoutSeconds = maxTimeoutSeconds
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	timeoutAt := stamp
	if processing {
		timeoutAt = now.UTC().Add(time.Duration(timeoutSeconds) * time.Second).Format(time.RFC3339Nano)
	}
	state := store.ProcessingState{
		Key:        key,
		Processing: processing,
		Reason:     reason,
		TimeoutAt:  timeoutAt,
		UpdatedAt:  stamp,
	}
	if err := w.store.UpsertProcessingState(ctx, state); err != nil {
		return store.ProcessingState{}, err
	}
	return state, nil
}

// Processing reads the flag for a subject key, defaulting to an idle state.
func (w *Watchdog) Processing(ctx context.Context, key string) (store.ProcessingState, error) {
	if key == "" {
		key = ProcessingKeyGateway
	}
	state, err := w.store.GetProcessingState(ctx, key)
	if err != nil {
		return store.ProcessingState{}, err
	}
	if state == nil {
		return store.ProcessingState{Key: key}, nil
	}
	return *state, nil
}

// FailSafeTick clears a stuck processing flag. The flag is reset when its
// deadline has passed, or when the gateway monitor last reported offline.
// Returns the reset reason, or "" when nothing was done.
func (w *Watchdog) FailSafeTick(ctx context.Context, now time.Time) (string, error) {
	state, err := w.store.GetProcessingState(ctx, ProcessingKeyGateway)
	if err != nil {
		return "", err
	}
	if state == nil || !state.Processing {
		return "", nil
	}

	reason := ""
	deadline, parseErr := time.Parse(time.RFC3339Nano, state.TimeoutAt)
	if parseErr != nil || now.After(deadline) {
		reason = ResetReasonTimeout
	} else {
		monitor, err := w.store.GetRuntimeMonitor(ctx, MonitorKeyGateway)
		if err != nil {
			return "", err
		}
		if monitor != nil && monitor.Status == store.MonitorOffline {
			reason = ResetReasonGatewayOffline
		}
	}
	if reason == "" {
		return "", nil
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	reset := store.ProcessingState{
		Key:        state.Key,
		Processing: false,
		Reason:     reason,
		TimeoutAt:  stamp,
		UpdatedAt:  stamp,
	}
	if err := w.store.UpsertProcessingState(ctx, reset); err != nil {
		return "", err
	}
	if _, err := w.log.Append(ctx, "processing_reset", "runtime", state.Key, map[string]any{"reason": reason}, now); err != nil {
		return "", err
	}
	return reason, nil
}
