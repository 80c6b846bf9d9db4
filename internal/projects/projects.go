package projects

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
)

var (
	ErrNotFound             = errors.New("project not found")
	ErrGloballyPaused       = errors.New("global mode is paused")
	ErrProjectAlreadyActive = errors.New("a project is already active")
	ErrNoActiveProject      = errors.New("no active project")
	ErrNoQueuedProjects     = errors.New("no queued projects")
	ErrEmptySpecs           = errors.New("specs produced no steps")
)

const (
	BlockerMissingCredential = "missing_credential"
	BlockerNeedsApproval     = "needs_approval"
	BlockerDependencyDown    = "dependency_down"
	BlockerAmbiguousInput    = "ambiguous_input"
	BlockerOther             = "other"
)

// Tick outcomes returned by RunTick.
const (
	TickBlocked   = "blocked"
	TickCompleted = "completed"
	TickOK        = "tick_ok"
)

// Engine owns the project queue state machine: at most one project is active
// at any time, and every transition writes its own activity entry.
type Engine struct {
	store store.Store
	log   *activity.Log
}

func NewEngine(st store.Store, log *activity.Log) *Engine {
	return &Engine{store: st, log: log}
}

type CreateParams struct {
	Name             string
	Description      string
	Outcome          string
	Specs            string
	DefinitionOfDone string
}

type UpdateParams struct {
	Name             *string
	Description      *string
	Outcome          *string
	Specs            *string
	DefinitionOfDone *string
	NextAction       *string
}

func (e *Engine) Create(ctx context.Context, params CreateParams, now time.Time) (store.Project, error) {
	stamp := now.UTC().Format(time.RFC3339Nano)
	project := store.Project{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(params.Name),
		Description:      params.Description,
		Outcome:          params.Outcome,
		Specs:            params.Specs,
		DefinitionOfDone: params.DefinitionOfDone,
		Status:           store.ProjectStatusInactive,
		CreatedAt:        stamp,
		UpdatedAt:        stamp,
	}
	if err := e.store.CreateProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_created", "project", project.ID, map[string]any{"name": project.Name}, now); err != nil {
		return store.Project{}, err
	}
	return project, nil
}

func (e *Engine) Update(ctx context.Context, projectID string, patch UpdateParams, now time.Time) (store.Project, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if current == nil {
		return store.Project{}, ErrNotFound
	}
	updated := *current
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Outcome != nil {
		updated.Outcome = *patch.Outcome
	}
	if patch.Specs != nil {
		updated.Specs = *patch.Specs
	}
	if patch.DefinitionOfDone != nil {
		updated.DefinitionOfDone = *patch.DefinitionOfDone
	}
	if patch.NextAction != nil {
		updated.NextAction = *patch.NextAction
	}
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_specs_updated", "project", updated.ID, map[string]any{"projectId": updated.ID}, now); err != nil {
		return store.Project{}, err
	}
	return updated, nil
}

func (e *Engine) Get(ctx context.Context, projectID string) (*store.Project, error) {
	return e.store.GetProject(ctx, projectID)
}

func (e *Engine) List(ctx context.Context) ([]store.Project, error) {
	return e.store.ListProjects(ctx)
}

func (e *Engine) Delete(ctx context.Context, projectID string) error {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	return e.store.DeleteProject(ctx, projectID)
}

// ListQueue returns queued projects in ascending queue-position order.
func (e *Engine) ListQueue(ctx context.Context) ([]store.Project, error) {
	items, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	queued := []store.Project{}
	for _, project := range items {
		if project.Status == store.ProjectStatusQueued {
			queued = append(queued, project)
		}
	}
	sortByPosition(queued)
	return queued, nil
}

func (e *Engine) Steps(ctx context.Context, projectID string) ([]store.ProjectStep, error) {
	return e.store.ListProjectSteps(ctx, projectID)
}

// ExecutionState reads the singleton gate, defaulting to running when the
// row has never been written.
func (e *Engine) ExecutionState(ctx context.Context, now time.Time) (store.ExecutionState, error) {
	state, err := e.store.GetExecutionState(ctx)
	if err != nil {
		return store.ExecutionState{}, err
	}
	if state == nil {
		return store.ExecutionState{Mode: store.ModeRunning, UpdatedAt: now.UTC().Format(time.RFC3339Nano)}, nil
	}
	return *state, nil
}

func (e *Engine) Enqueue(ctx context.Context, projectID string, now time.Time) (store.Project, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if current == nil {
		return store.Project{}, ErrNotFound
	}
	position, err := e.nextQueuePosition(ctx)
	if err != nil {
		return store.Project{}, err
	}
	updated := *current
	updated.Status = store.ProjectStatusQueued
	updated.QueuePosition = position
	updated.BlockerReason = ""
	updated.BlockerDetails = ""
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_queued", "project", updated.ID, map[string]any{"queuePosition": position}, now); err != nil {
		return store.Project{}, err
	}
	return updated, nil
}

func (e *Engine) ActivateNext(ctx context.Context, now time.Time) (store.Project, error) {
	mode, err := e.ExecutionState(ctx, now)
	if err != nil {
		return store.Project{}, err
	}
	if mode.Mode != store.ModeRunning {
		return store.Project{}, ErrGloballyPaused
	}
	active, err := e.activeProject(ctx)
	if err != nil {
		return store.Project{}, err
	}
	if active != nil {
		return store.Project{}, ErrProjectAlreadyActive
	}
	queue, err := e.ListQueue(ctx)
	if err != nil {
		return store.Project{}, err
	}
	if len(queue) == 0 {
		return store.Project{}, ErrNoQueuedProjects
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	next := queue[0]
	next.Status = store.ProjectStatusActive
	next.QueuePosition = 0
	next.LastExecutionAt = stamp
	next.UpdatedAt = stamp
	if err := e.store.UpdateProject(ctx, next); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_activated", "project", next.ID, map[string]any{"projectId": next.ID}, now); err != nil {
		return store.Project{}, err
	}
	return next, nil
}

// SetMode upserts the global execution gate. Pausing also demotes any active
// project back to the queue so the system is always resumable.
func (e *Engine) SetMode(ctx context.Context, mode string, now time.Time) error {
	if mode != store.ModeRunning && mode != store.ModePaused {
		mode = store.ModeRunning
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	if err := e.store.UpsertExecutionState(ctx, store.ExecutionState{Mode: mode, UpdatedAt: stamp}); err != nil {
		return err
	}
	if mode != store.ModePaused {
		return nil
	}
	active, err := e.activeProject(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	position, err := e.nextQueuePosition(ctx)
	if err != nil {
		return err
	}
	demoted := *active
	demoted.Status = store.ProjectStatusQueued
	demoted.QueuePosition = position
	demoted.UpdatedAt = stamp
	if err := e.store.UpdateProject(ctx, demoted); err != nil {
		return err
	}
	_, err = e.log.Append(ctx, "project_paused", "project", demoted.ID, map[string]any{"reason": "global_pause"}, now)
	return err
}

// SetBlocked marks one project blocked and force-pauses the whole queue: a
// blocked project means the agent cannot safely continue unattended.
func (e *Engine) SetBlocked(ctx context.Context, projectID string, reason string, details string, now time.Time) (store.Project, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if current == nil {
		return store.Project{}, ErrNotFound
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	updated := *current
	updated.Status = store.ProjectStatusBlocked
	updated.QueuePosition = 0
	updated.BlockerReason = normalizeBlockerReason(reason)
	updated.BlockerDetails = details
	updated.UpdatedAt = stamp
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return store.Project{}, err
	}
	if err := e.store.UpsertExecutionState(ctx, store.ExecutionState{Mode: store.ModePaused, UpdatedAt: stamp}); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_blocked", "project", updated.ID, map[string]any{
		"blockerReason":  updated.BlockerReason,
		"blockerDetails": details,
	}, now); err != nil {
		return store.Project{}, err
	}
	return updated, nil
}

// ResolveBlocked returns a blocked project to the queue. The global mode is
// left paused; resuming is an explicit operator decision.
func (e *Engine) ResolveBlocked(ctx context.Context, projectID string, now time.Time) (store.Project, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if current == nil {
		return store.Project{}, ErrNotFound
	}
	position, err := e.nextQueuePosition(ctx)
	if err != nil {
		return store.Project{}, err
	}
	updated := *current
	updated.Status = store.ProjectStatusQueued
	updated.QueuePosition = position
	updated.BlockerReason = ""
	updated.BlockerDetails = ""
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_unblocked", "project", updated.ID, map[string]any{"projectId": updated.ID}, now); err != nil {
		return store.Project{}, err
	}
	return updated, nil
}

func (e *Engine) SetInactive(ctx context.Context, projectID string, now time.Time) (store.Project, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if current == nil {
		return store.Project{}, ErrNotFound
	}
	updated := *current
	updated.Status = store.ProjectStatusInactive
	updated.QueuePosition = 0
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return store.Project{}, err
	}
	if _, err := e.log.Append(ctx, "project_deactivated", "project", updated.ID, map[string]any{"projectId": updated.ID}, now); err != nil {
		return store.Project{}, err
	}
	return updated, nil
}

// BuildPlan destroys and rebuilds the project's step plan from its specs.
func (e *Engine) BuildPlan(ctx context.Context, projectID string, now time.Time) ([]store.ProjectStep, error) {
	current, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	texts := ParseSpecSteps(current.Specs)
	if len(texts) == 0 {
		return nil, ErrEmptySpecs
	}
	stamp := now.UTC().Format(time.RFC3339Nano)
	steps := store.BuildPlanSteps(projectID, texts, stamp)
	if err := e.store.ReplaceProjectSteps(ctx, projectID, steps); err != nil {
		return nil, err
	}
	updated := *current
	updated.NextAction = texts[0]
	updated.UpdatedAt = stamp
	if err := e.store.UpdateProject(ctx, updated); err != nil {
		return nil, err
	}
	if _, err := e.log.Append(ctx, "project_plan_built", "project", projectID, map[string]any{"stepCount": len(steps)}, now); err != nil {
		return nil, err
	}
	return steps, nil
}

// RunTick advances the active project by at most one step. It is the single
// advancement primitive; each call keeps the automation human-observable.
func (e *Engine) RunTick(ctx context.Context, now time.Time) (string, error) {
	mode, err := e.ExecutionState(ctx, now)
	if err != nil {
		return "", err
	}
	if mode.Mode != store.ModeRunning {
		return "", ErrGloballyPaused
	}
	active, err := e.activeProject(ctx)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", ErrNoActiveProject
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	steps, err := e.store.ListProjectSteps(ctx, active.ID)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		texts := ParseSpecSteps(active.Specs)
		if len(texts) == 0 {
			if _, err := e.SetBlocked(ctx, active.ID, BlockerAmbiguousInput, "Specs produced no executable steps.", now); err != nil {
				return "", err
			}
			return TickBlocked, nil
		}
		steps = store.BuildPlanSteps(active.ID, texts, stamp)
		if err := e.store.ReplaceProjectSteps(ctx, active.ID, steps); err != nil {
			return "", err
		}
		if _, err := e.log.Append(ctx, "project_plan_built", "project", active.ID, map[string]any{"stepCount": len(steps)}, now); err != nil {
			return "", err
		}
	}

	step, ok := store.FirstUnfinishedStep(steps)
	if !ok {
		completed := *active
		completed.Status = store.ProjectStatusInactive
		completed.QueuePosition = 0
		completed.NextAction = "Completed"
		completed.LastExecutionAt = stamp
		completed.UpdatedAt = stamp
		if err := e.store.UpdateProject(ctx, completed); err != nil {
			return "", err
		}
		if _, err := e.log.Append(ctx, "project_completed", "project", active.ID, map[string]any{"projectId": active.ID}, now); err != nil {
			return "", err
		}
		return TickCompleted, nil
	}

	// Single bookkeeping transition: no partial-step state survives a tick,
	// since real execution happens in the external agent.
	step.Status = store.StepStatusRunning
	step.UpdatedAt = stamp
	if err := e.store.UpdateProjectStep(ctx, step); err != nil {
		return "", err
	}
	step.Status = store.StepStatusDone
	if err := e.store.UpdateProjectStep(ctx, step); err != nil {
		return "", err
	}

	advanced := *active
	advanced.NextAction = store.NextActionAfter(steps, step.StepIndex)
	advanced.LastExecutionAt = stamp
	advanced.UpdatedAt = stamp
	if err := e.store.UpdateProject(ctx, advanced); err != nil {
		return "", err
	}
	if _, err := e.log.Append(ctx, "project_tick_executed", "project", active.ID, map[string]any{
		"step":      step.Text,
		"stepIndex": step.StepIndex,
	}, now); err != nil {
		return "", err
	}
	return TickOK, nil
}

func (e *Engine) activeProject(ctx context.Context) (*store.Project, error) {
	items, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, project := range items {
		if project.Status == store.ProjectStatusActive {
			copy := project
			return &copy, nil
		}
	}
	return nil, nil
}

func (e *Engine) nextQueuePosition(ctx context.Context) (int, error) {
	items, err := e.store.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, project := range items {
		if project.Status == store.ProjectStatusQueued && project.QueuePosition > max {
			max = project.QueuePosition
		}
	}
	return max + 1, nil
}

func normalizeBlockerReason(reason string) string {
	switch reason {
	case BlockerMissingCredential, BlockerNeedsApproval, BlockerDependencyDown, BlockerAmbiguousInput:
		return reason
	default:
		return BlockerOther
	}
}

func sortByPosition(items []store.Project) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].QueuePosition < items[j].QueuePosition
	})
}
