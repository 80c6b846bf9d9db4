package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/outpost-ops/conductor/internal/store"
)

type MemoryStore struct {
	mu         sync.RWMutex
	projects   map[string]store.Project
	steps      map[string][]store.ProjectStep
	execution  *store.ExecutionState
	protocols  map[string]store.Protocol
	runs       map[string]store.ProtocolRun
	runSteps   map[string][]store.ProtocolRunStep
	activity   []store.ActivityEvent
	monitors   map[string]store.RuntimeMonitor
	processing map[string]store.ProcessingState
}

func New() *MemoryStore {
	return &MemoryStore{
		projects:   map[string]store.Project{},
		steps:      map[string][]store.ProjectStep{},
		protocols:  map[string]store.Protocol{},
		runs:       map[string]store.ProtocolRun{},
		runSteps:   map[string][]store.ProtocolRunStep{},
		monitors:   map[string]store.RuntimeMonitor{},
		processing: map[string]store.ProcessingState{},
	}
}

func (m *MemoryStore) CreateProject(ctx context.Context, project store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project.ID == "" {
		return fmt.Errorf("project id required")
	}
	if strings.TrimSpace(project.Status) == "" {
		project.Status = store.ProjectStatusInactive
	}
	m.projects[project.ID] = project
	return nil
}

func (m *MemoryStore) GetProject(ctx context.Context, projectID string) (*store.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	project, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}
	copy := project
	return &copy, nil
}

func (m *MemoryStore) UpdateProject(ctx context.Context, project store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return nil
	}
	m.projects[project.ID] = project
	return nil
}

func (m *MemoryStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Project, 0, len(m.projects))
	for _, project := range m.projects {
		results = append(results, project)
	}
	sort.Slice(results, func(i, j int) bool {
		left := parseTime(results[i].CreatedAt)
		right := parseTime(results[j].CreatedAt)
		if left.Equal(right) {
			return results[i].ID < results[j].ID
		}
		return left.Before(right)
	})
	return results, nil
}

func (m *MemoryStore) DeleteProject(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, projectID)
	delete(m.steps, projectID)
	return nil
}

func (m *MemoryStore) ReplaceProjectSteps(ctx context.Context, projectID string, steps []store.ProjectStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := make([]store.ProjectStep, len(steps))
	copy(cloned, steps)
	sort.Slice(cloned, func(i, j int) bool { return cloned[i].StepIndex < cloned[j].StepIndex })
	m.steps[projectID] = cloned
	return nil
}

func (m *MemoryStore) UpdateProjectStep(ctx context.Context, step store.ProjectStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.steps[step.ProjectID]
	for idx := range steps {
		if steps[idx].ID == step.ID {
			steps[idx] = step
			m.steps[step.ProjectID] = steps
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) ListProjectSteps(ctx context.Context, projectID string) ([]store.ProjectStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	steps := m.steps[projectID]
	cloned := make([]store.ProjectStep, len(steps))
	copy(cloned, steps)
	sort.Slice(cloned, func(i, j int) bool { return cloned[i].StepIndex < cloned[j].StepIndex })
	return cloned, nil
}

func (m *MemoryStore) GetExecutionState(ctx context.Context) (*store.ExecutionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.execution == nil {
		return nil, nil
	}
	copy := *m.execution
	return &copy, nil
}

func (m *MemoryStore) UpsertExecutionState(ctx context.Context, state store.ExecutionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := state
	m.execution = &copy
	return nil
}

func (m *MemoryStore) CreateProtocol(ctx context.Context, protocol store.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if protocol.ID == "" {
		return fmt.Errorf("protocol id required")
	}
	m.protocols[protocol.ID] = cloneProtocol(protocol)
	return nil
}

func (m *MemoryStore) GetProtocol(ctx context.Context, protocolID string) (*store.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	protocol, ok := m.protocols[protocolID]
	if !ok {
		return nil, nil
	}
	cloned := cloneProtocol(protocol)
	return &cloned, nil
}

func (m *MemoryStore) UpdateProtocol(ctx context.Context, protocol store.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.protocols[protocol.ID]; !ok {
		return nil
	}
	m.protocols[protocol.ID] = cloneProtocol(protocol)
	return nil
}

func (m *MemoryStore) ListProtocols(ctx context.Context) ([]store.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Protocol, 0, len(m.protocols))
	for _, protocol := range m.protocols {
		results = append(results, cloneProtocol(protocol))
	}
	sort.Slice(results, func(i, j int) bool {
		left := parseTime(results[i].CreatedAt)
		right := parseTime(results[j].CreatedAt)
		if left.Equal(right) {
			return results[i].ID < results[j].ID
		}
		return left.Before(right)
	})
	return results, nil
}

func (m *MemoryStore) DeleteProtocol(ctx context.Context, protocolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.protocols, protocolID)
	return nil
}

func (m *MemoryStore) CreateProtocolRun(ctx context.Context, run store.ProtocolRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		return fmt.Errorf("run id required")
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) GetProtocolRun(ctx context.Context, runID string) (*store.ProtocolRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	copy := run
	return &copy, nil
}

func (m *MemoryStore) UpdateProtocolRun(ctx context.Context, run store.ProtocolRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return nil
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) ListProtocolRuns(ctx context.Context) ([]store.ProtocolRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.ProtocolRun, 0, len(m.runs))
	for _, run := range m.runs {
		results = append(results, run)
	}
	sort.Slice(results, func(i, j int) bool {
		left := parseTime(results[i].StartedAt)
		right := parseTime(results[j].StartedAt)
		if left.Equal(right) {
			return results[i].ID < results[j].ID
		}
		return left.After(right)
	})
	return results, nil
}

func (m *MemoryStore) CreateProtocolRunStep(ctx context.Context, step store.ProtocolRunStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runSteps[step.RunID] = append(m.runSteps[step.RunID], step)
	return nil
}

func (m *MemoryStore) UpdateProtocolRunStep(ctx context.Context, step store.ProtocolRunStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.runSteps[step.RunID]
	for idx := range steps {
		if steps[idx].ID == step.ID {
			steps[idx] = step
			m.runSteps[step.RunID] = steps
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) ListProtocolRunSteps(ctx context.Context, runID string) ([]store.ProtocolRunStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	steps := m.runSteps[runID]
	cloned := make([]store.ProtocolRunStep, len(steps))
	copy(cloned, steps)
	sort.Slice(cloned, func(i, j int) bool { return cloned[i].StepIndex < cloned[j].StepIndex })
	return cloned, nil
}

func (m *MemoryStore) AppendActivityEvent(ctx context.Context, event store.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, event)
	return nil
}

func (m *MemoryStore) ListActivityEvents(ctx context.Context, limit int) ([]store.ActivityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.ActivityEvent, len(m.activity))
	copy(results, m.activity)
	sort.SliceStable(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) ListActivityEventsByEntity(ctx context.Context, entityType string, entityID string) ([]store.ActivityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.ActivityEvent{}
	for _, event := range m.activity {
		if event.EntityType == entityType && event.EntityID == entityID {
			results = append(results, event)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	return results, nil
}

func (m *MemoryStore) UpsertRuntimeMonitor(ctx context.Context, monitor store.RuntimeMonitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(monitor.Key) == "" {
		return fmt.Errorf("monitor key required")
	}
	m.monitors[monitor.Key] = monitor
	return nil
}

func (m *MemoryStore) GetRuntimeMonitor(ctx context.Context, key string) (*store.RuntimeMonitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	monitor, ok := m.monitors[key]
	if !ok {
		return nil, nil
	}
	copy := monitor
	return &copy, nil
}

func (m *MemoryStore) ListRuntimeMonitors(ctx context.Context) ([]store.RuntimeMonitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.RuntimeMonitor, 0, len(m.monitors))
	for _, monitor := range m.monitors {
		results = append(results, monitor)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

func (m *MemoryStore) GetProcessingState(ctx context.Context, key string) (*store.ProcessingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.processing[key]
	if !ok {
		return nil, nil
	}
	copy := state
	return &copy, nil
}

func (m *MemoryStore) UpsertProcessingState(ctx context.Context, state store.ProcessingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(state.Key) == "" {
		return fmt.Errorf("processing key required")
	}
	m.processing[state.Key] = state
	return nil
}

func cloneProtocol(protocol store.Protocol) store.Protocol {
	cloned := protocol
	cloned.RequiredInputs = append([]string{}, protocol.RequiredInputs...)
	cloned.Steps = append([]string{}, protocol.Steps...)
	return cloned
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
