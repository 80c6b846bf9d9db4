package protocols

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
)

const (
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
)

// Engine executes protocol runs. A run that is refused by gating (missing
// inputs, missing approval) is not an error: it completes normally as a
// failed run with the refusal recorded on the run and in the activity log.
type Engine struct {
	store store.Store
	log   *activity.Log
}

func NewEngine(st store.Store, log *activity.Log) *Engine {
	return &Engine{store: st, log: log}
}

type RunParams struct {
	ApprovalGranted bool
	ProvidedInputs  []string
	Source          string
}

func (e *Engine) Run(ctx context.Context, protocolID string, params RunParams, now time.Time) (store.ProtocolRun, error) {
	protocol, err := e.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return store.ProtocolRun{}, err
	}
	if protocol == nil {
		return store.ProtocolRun{}, ErrNotFound
	}
	if !protocol.Active {
		return store.ProtocolRun{}, ErrProtocolPaused
	}
	source := params.Source
	if source == "" {
		source = SourceManual
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	run := store.ProtocolRun{
		ID:         uuid.NewString(),
		ProtocolID: protocol.ID,
		Status:     store.RunStatusQueued,
		StartedAt:  stamp,
		Output:     "Queued protocol: " + protocol.Name,
	}
	if err := e.store.CreateProtocolRun(ctx, run); err != nil {
		return store.ProtocolRun{}, err
	}

	missing := missingInputs(protocol, params.ProvidedInputs)
	if len(missing) > 0 {
		run.Status = store.RunStatusFailed
		run.EndedAt = stamp
		run.Error = "Missing required inputs: " + strings.Join(missing, ", ")
		if err := e.store.UpdateProtocolRun(ctx, run); err != nil {
			return store.ProtocolRun{}, err
		}
		if _, err := e.log.Append(ctx, "protocol_run_blocked", "protocol", protocol.ID, map[string]any{
			"protocolId":    protocol.ID,
			"reason":        "missing_inputs",
			"missingInputs": missing,
			"runId":         run.ID,
		}, now); err != nil {
			return store.ProtocolRun{}, err
		}
		return run, nil
	}

	if protocol.ApprovalsRequired && !params.ApprovalGranted {
		run.Status = store.RunStatusFailed
		run.EndedAt = stamp
		run.Error = "Approval required before execution."
		if err := e.store.UpdateProtocolRun(ctx, run); err != nil {
			return store.ProtocolRun{}, err
		}
		if _, err := e.log.Append(ctx, "protocol_run_blocked", "protocol", protocol.ID, map[string]any{
			"protocolId": protocol.ID,
			"reason":     "approval_required",
			"runId":      run.ID,
		}, now); err != nil {
			return store.ProtocolRun{}, err
		}
		return run, nil
	}

	run.Status = store.RunStatusRunning
	run.Output = "Running protocol: " + protocol.Name
	if err := e.store.UpdateProtocolRun(ctx, run); err != nil {
		return store.ProtocolRun{}, err
	}
	if _, err := e.log.Append(ctx, "protocol_run_started", "protocol", protocol.ID, map[string]any{
		"protocolId": protocol.ID,
		"runId":      run.ID,
		"source":     source,
	}, now); err != nil {
		return store.ProtocolRun{}, err
	}

	// Real step effects are delegated to the external agent; this records
	// intent and completion bookkeeping only.
	for idx, stepText := range protocol.Steps {
		step := store.ProtocolRunStep{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			StepIndex: idx,
			StepText:  stepText,
			Status:    store.StepStatusRunning,
			StartedAt: stamp,
		}
		if err := e.store.CreateProtocolRunStep(ctx, step); err != nil {
			return store.ProtocolRun{}, err
		}
		step.Status = store.StepStatusSuccess
		step.EndedAt = stamp
		if err := e.store.UpdateProtocolRunStep(ctx, step); err != nil {
			return store.ProtocolRun{}, err
		}
	}

	dod := protocol.DefinitionOfDone
	if strings.TrimSpace(dod) == "" {
		dod = "n/a"
	}
	run.Status = store.RunStatusSuccess
	run.EndedAt = stamp
	run.Output = fmt.Sprintf("Executed %d steps. DoD: %s", len(protocol.Steps), dod)
	if err := e.store.UpdateProtocolRun(ctx, run); err != nil {
		return store.ProtocolRun{}, err
	}
	if _, err := e.log.Append(ctx, "protocol_run_completed", "protocol", protocol.ID, map[string]any{
		"protocolId": protocol.ID,
		"runId":      run.ID,
		"status":     store.RunStatusSuccess,
		"source":     source,
	}, now); err != nil {
		return store.ProtocolRun{}, err
	}
	return run, nil
}

func (e *Engine) ListRuns(ctx context.Context) ([]store.ProtocolRun, error) {
	return e.store.ListProtocolRuns(ctx)
}

func (e *Engine) RunSteps(ctx context.Context, runID string) ([]store.ProtocolRunStep, error) {
	return e.store.ListProtocolRunSteps(ctx, runID)
}

// missingInputs computes requiredInputs minus providedInputs on trimmed,
// non-empty names. An allow-no-input protocol skips the check entirely.
func missingInputs(protocol *store.Protocol, provided []string) []string {
	if protocol.AllowNoInput {
		return nil
	}
	have := map[string]struct{}{}
	for _, input := range provided {
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		have[trimmed] = struct{}{}
	}
	missing := []string{}
	for _, required := range protocol.RequiredInputs {
		if _, ok := have[required]; !ok {
			missing = append(missing, required)
		}
	}
	return missing
}

type RunTotals struct {
	Total       int `json:"total"`
	Success     int `json:"success"`
	Failed      int `json:"failed"`
	SuccessRate int `json:"successRate"`
}

type ProtocolTotals struct {
	ProtocolID string `json:"protocolId"`
	Total      int    `json:"total"`
	Success    int    `json:"success"`
	Failed     int    `json:"failed"`
}

type RunAnalytics struct {
	Totals     RunTotals        `json:"totals"`
	ByProtocol []ProtocolTotals `json:"byProtocol"`
}

func (e *Engine) Analytics(ctx context.Context) (RunAnalytics, error) {
	runs, err := e.store.ListProtocolRuns(ctx)
	if err != nil {
		return RunAnalytics{}, err
	}
	totals := RunTotals{Total: len(runs)}
	byProtocol := map[string]*ProtocolTotals{}
	for _, run := range runs {
		entry, ok := byProtocol[run.ProtocolID]
		if !ok {
			entry = &ProtocolTotals{ProtocolID: run.ProtocolID}
			byProtocol[run.ProtocolID] = entry
		}
		entry.Total++
		switch run.Status {
		case store.RunStatusSuccess:
			totals.Success++
			entry.Success++
		case store.RunStatusFailed:
			totals.Failed++
			entry.Failed++
		}
	}
	if totals.Total > 0 {
		totals.SuccessRate = int(math.Round(float64(totals.Success) / float64(totals.Total) * 100))
	}
	grouped := make([]ProtocolTotals, 0, len(byProtocol))
	for _, entry := range byProtocol {
		grouped = append(grouped, *entry)
	}
	sort.Slice(grouped, func(i, j int) bool { return grouped[i].ProtocolID < grouped[j].ProtocolID })
	return RunAnalytics{Totals: totals, ByProtocol: grouped}, nil
}
