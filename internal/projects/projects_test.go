package projects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
	"github.com/outpost-ops/conductor/internal/store/memory"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := memory.New()
	return NewEngine(st, activity.NewLog(st, nil)), st
}

func mustCreate(t *testing.T, engine *Engine, params CreateParams, now time.Time) store.Project {
	t.Helper()
	project, err := engine.Create(context.Background(), params, now)
	require.NoError(t, err)
	return project
}

func eventTypes(t *testing.T, st store.Store, projectID string) []string {
	t.Helper()
	items, err := st.ListActivityEventsByEntity(context.Background(), "project", projectID)
	require.NoError(t, err)
	types := make([]string, 0, len(items))
	for _, event := range items {
		types = append(types, event.EventType)
	}
	return types
}

func TestCreate_StartsInactive(t *testing.T) {
	engine, st := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "  Ship v2  "}, now)
	require.Equal(t, "Ship v2", project.Name)
	require.Equal(t, store.ProjectStatusInactive, project.Status)
	require.Zero(t, project.QueuePosition)

	require.Contains(t, eventTypes(t, st, project.ID), "project_created")
}

func TestEnqueue_AssignsIncreasingPositions(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	first := mustCreate(t, engine, CreateParams{Name: "First"}, now)
	second := mustCreate(t, engine, CreateParams{Name: "Second"}, now)

	queuedFirst, err := engine.Enqueue(context.Background(), first.ID, now)
	require.NoError(t, err)
	queuedSecond, err := engine.Enqueue(context.Background(), second.ID, now)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusQueued, queuedFirst.Status)
	require.Greater(t, queuedSecond.QueuePosition, queuedFirst.QueuePosition)

	queue, err := engine.ListQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, first.ID, queue[0].ID)
	require.Equal(t, second.ID, queue[1].ID)
}

func TestActivateNext_SingleActiveInvariant(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	first := mustCreate(t, engine, CreateParams{Name: "First"}, now)
	second := mustCreate(t, engine, CreateParams{Name: "Second"}, now)
	_, err := engine.Enqueue(context.Background(), first.ID, now)
	require.NoError(t, err)
	_, err = engine.Enqueue(context.Background(), second.ID, now)
	require.NoError(t, err)

	active, err := engine.ActivateNext(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
	require.Equal(t, store.ProjectStatusActive, active.Status)
	require.NotEmpty(t, active.LastExecutionAt)

	_, err = engine.ActivateNext(context.Background(), now)
	require.ErrorIs(t, err, ErrProjectAlreadyActive)
}

func TestActivateNext_EmptyQueue(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.ActivateNext(context.Background(), time.Now().UTC())
	require.ErrorIs(t, err, ErrNoQueuedProjects)
}

func TestActivateNext_RefusedWhilePaused(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Waiting"}, now)
	_, err := engine.Enqueue(context.Background(), project.ID, now)
	require.NoError(t, err)
	require.NoError(t, engine.SetMode(context.Background(), store.ModePaused, now))

	_, err = engine.ActivateNext(context.Background(), now)
	require.ErrorIs(t, err, ErrGloballyPaused)
}

func TestSetMode_PauseDemotesActiveProject(t *testing.T) {
	engine, st := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Running"}, now)
	_, err := engine.Enqueue(context.Background(), project.ID, now)
	require.NoError(t, err)
	_, err = engine.ActivateNext(context.Background(), now)
	require.NoError(t, err)

	require.NoError(t, engine.SetMode(context.Background(), store.ModePaused, now.Add(time.Minute)))

	current, err := engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusQueued, current.Status)
	require.Greater(t, current.QueuePosition, 0)

	state, err := engine.ExecutionState(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, store.ModePaused, state.Mode)

	require.Contains(t, eventTypes(t, st, project.ID), "project_paused")
}

func TestSetBlocked_ForcesGlobalPause(t *testing.T) {
	engine, st := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Stuck"}, now)
	blocked, err := engine.SetBlocked(context.Background(), project.ID, BlockerMissingCredential, "Vault token expired", now)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusBlocked, blocked.Status)
	require.Equal(t, BlockerMissingCredential, blocked.BlockerReason)
	require.Equal(t, "Vault token expired", blocked.BlockerDetails)

	state, err := engine.ExecutionState(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, store.ModePaused, state.Mode)

	require.Contains(t, eventTypes(t, st, project.ID), "project_blocked")
}

func TestSetBlocked_UnknownReasonNormalized(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Stuck"}, now)
	blocked, err := engine.SetBlocked(context.Background(), project.ID, "weird_reason", "", now)
	require.NoError(t, err)
	require.Equal(t, BlockerOther, blocked.BlockerReason)
}

func TestResolveBlocked_ReturnsToQueueButStaysPaused(t *testing.T) {
	engine, st := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Stuck"}, now)
	_, err := engine.SetBlocked(context.Background(), project.ID, BlockerDependencyDown, "Gateway offline", now)
	require.NoError(t, err)

	resolved, err := engine.ResolveBlocked(context.Background(), project.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusQueued, resolved.Status)
	require.Empty(t, resolved.BlockerReason)
	require.Empty(t, resolved.BlockerDetails)

	// Resuming is an explicit operator decision.
	state, err := engine.ExecutionState(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, store.ModePaused, state.Mode)

	require.Contains(t, eventTypes(t, st, project.ID), "project_unblocked")
}

func TestBuildPlan_FromSpecs(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{
		Name:  "Planned",
		Specs: "- Write docs\n- Review docs",
	}, now)

	steps, err := engine.BuildPlan(context.Background(), project.ID, now)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "Write docs", steps[0].Text)
	require.Equal(t, store.StepStatusPending, steps[0].Status)

	current, err := engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "Write docs", current.NextAction)
}

func TestBuildPlan_EmptySpecs(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Empty", Specs: "\n\n"}, now)
	_, err := engine.BuildPlan(context.Background(), project.ID, now)
	require.ErrorIs(t, err, ErrEmptySpecs)
}

func TestRunTick_AdvancesOneStepPerTick(t *testing.T) {
	engine, st := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{
		Name:  "Two step project",
		Specs: "- A\n- B",
	}, now)
	_, err := engine.Enqueue(context.Background(), project.ID, now)
	require.NoError(t, err)
	_, err = engine.ActivateNext(context.Background(), now)
	require.NoError(t, err)

	// First tick lazily builds the plan and finishes step A.
	outcome, err := engine.RunTick(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, TickOK, outcome)
	current, err := engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "B", current.NextAction)

	outcome, err = engine.RunTick(context.Background(), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, TickOK, outcome)
	current, err = engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "Finalize project", current.NextAction)

	// All steps done: the third tick completes and deactivates.
	outcome, err = engine.RunTick(context.Background(), now.Add(3*time.Minute))
	require.NoError(t, err)
	require.Equal(t, TickCompleted, outcome)
	current, err = engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusInactive, current.Status)
	require.Equal(t, "Completed", current.NextAction)

	types := eventTypes(t, st, project.ID)
	require.Contains(t, types, "project_plan_built")
	require.Contains(t, types, "project_tick_executed")
	require.Contains(t, types, "project_completed")
}

func TestRunTick_RequiresActiveProject(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.RunTick(context.Background(), time.Now().UTC())
	require.ErrorIs(t, err, ErrNoActiveProject)
}

func TestRunTick_RefusedWhilePaused(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, engine.SetMode(context.Background(), store.ModePaused, now))

	_, err := engine.RunTick(context.Background(), now)
	require.ErrorIs(t, err, ErrGloballyPaused)
}

func TestRunTick_EmptySpecsBlocksProject(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "No plan", Specs: ""}, now)
	_, err := engine.Enqueue(context.Background(), project.ID, now)
	require.NoError(t, err)
	_, err = engine.ActivateNext(context.Background(), now)
	require.NoError(t, err)

	outcome, err := engine.RunTick(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, TickBlocked, outcome)

	current, err := engine.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusBlocked, current.Status)
	require.Equal(t, BlockerAmbiguousInput, current.BlockerReason)

	state, err := engine.ExecutionState(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, store.ModePaused, state.Mode)
}

func TestSetInactive(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Retired"}, now)
	_, err := engine.Enqueue(context.Background(), project.ID, now)
	require.NoError(t, err)

	updated, err := engine.SetInactive(context.Background(), project.ID, now)
	require.NoError(t, err)
	require.Equal(t, store.ProjectStatusInactive, updated.Status)
	require.Zero(t, updated.QueuePosition)
}

func TestUpdate_PartialPatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	project := mustCreate(t, engine, CreateParams{Name: "Patchable", Outcome: "Keep outcome"}, now)
	name := "Renamed"
	next := "Do the thing"
	updated, err := engine.Update(context.Background(), project.ID, UpdateParams{Name: &name, NextAction: &next}, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, "Keep outcome", updated.Outcome)
	require.Equal(t, "Do the thing", updated.NextAction)
}

func TestDelete_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.ErrorIs(t, engine.Delete(context.Background(), "missing"), ErrNotFound)
}
