package store

import "context"

const (
	ProjectStatusInactive = "inactive"
	ProjectStatusQueued   = "queued"
	ProjectStatusActive   = "active"
	ProjectStatusBlocked  = "blocked"
)

const (
	ModeRunning = "running"
	ModePaused  = "paused"
)

const (
	RunStatusQueued  = "queued"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

const (
	StepStatusPending = "pending"
	StepStatusRunning = "running"
	StepStatusDone    = "done"
	StepStatusBlocked = "blocked"
	StepStatusSuccess = "success"
)

const (
	ScheduleModeInterval = "interval"
	ScheduleModeWeekly   = "weekly"
)

const (
	MonitorOnline  = "online"
	MonitorOffline = "offline"
	MonitorUnknown = "unknown"
)

type Project struct {
	ID               string
	Name             string
	Description      string
	Specs            string
	Outcome          string
	DefinitionOfDone string
	Status           string
	QueuePosition    int
	BlockerReason    string
	BlockerDetails   string
	NextAction       string
	LastExecutionAt  string
	CreatedAt        string
	UpdatedAt        string
}

type ProjectStep struct {
	ID        string
	ProjectID string
	StepIndex int
	Text      string
	Status    string
	UpdatedAt string
}

// ExecutionState is the singleton gate on queue advancement.
type ExecutionState struct {
	Mode      string
	UpdatedAt string
}

type Protocol struct {
	ID                      string
	Name                    string
	Trigger                 string
	Objective               string
	DefinitionOfDone        string
	RequiredInputs          []string
	Steps                   []string
	ApprovalsRequired       bool
	AllowNoInput            bool
	Active                  bool
	ScheduleEnabled         bool
	ScheduleMode            string
	ScheduleIntervalMinutes int
	ScheduleWeekday         string
	ScheduleTime            string
	ScheduleTimezone        string
	LastScheduledRunAt      string
	LastScheduledSlot       string
	TemplateCategory        string
	CreatedAt               string
	UpdatedAt               string
}

type ProtocolRun struct {
	ID         string
	ProtocolID string
	Status     string
	StartedAt  string
	EndedAt    string
	Output     string
	Error      string
}

type ProtocolRunStep struct {
	ID        string
	RunID     string
	StepIndex int
	StepText  string
	Status    string
	StartedAt string
	EndedAt   string
}

type ActivityEvent struct {
	ID         string
	EventType  string
	EntityType string
	EntityID   string
	Payload    string
	Summary    string
	CreatedAt  string
}

type RuntimeMonitor struct {
	Key           string
	Label         string
	Medium        string
	Target        string
	Status        string
	Details       string
	LastCheckedAt string
	UpdatedAt     string
}

// ProcessingState is one row per subject key, e.g. the agent gateway.
type ProcessingState struct {
	Key        string
	Processing bool
	Reason     string
	TimeoutAt  string
	UpdatedAt  string
}

type Store interface {
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)
	UpdateProject(ctx context.Context, project Project) error
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, projectID string) error

	ReplaceProjectSteps(ctx context.Context, projectID string, steps []ProjectStep) error
	UpdateProjectStep(ctx context.Context, step ProjectStep) error
	ListProjectSteps(ctx context.Context, projectID string) ([]ProjectStep, error)

	GetExecutionState(ctx context.Context) (*ExecutionState, error)
	UpsertExecutionState(ctx context.Context, state ExecutionState) error

	CreateProtocol(ctx context.Context, protocol Protocol) error
	GetProtocol(ctx context.Context, protocolID string) (*Protocol, error)
	UpdateProtocol(ctx context.Context, protocol Protocol) error
	ListProtocols(ctx context.Context) ([]Protocol, error)
	DeleteProtocol(ctx context.Context, protocolID string) error

	CreateProtocolRun(ctx context.Context, run ProtocolRun) error
	GetProtocolRun(ctx context.Context, runID string) (*ProtocolRun, error)
	UpdateProtocolRun(ctx context.Context, run ProtocolRun) error
	ListProtocolRuns(ctx context.Context) ([]ProtocolRun, error)

	CreateProtocolRunStep(ctx context.Context, step ProtocolRunStep) error
	UpdateProtocolRunStep(ctx context.Context, step ProtocolRunStep) error
	ListProtocolRunSteps(ctx context.Context, runID string) ([]ProtocolRunStep, error)

	AppendActivityEvent(ctx context.Context, event ActivityEvent) error
	ListActivityEvents(ctx context.Context, limit int) ([]ActivityEvent, error)
	ListActivityEventsByEntity(ctx context.Context, entityType string, entityID string) ([]ActivityEvent, error)

	UpsertRuntimeMonitor(ctx context.Context, monitor RuntimeMonitor) error
	GetRuntimeMonitor(ctx context.Context, key string) (*RuntimeMonitor, error)
	ListRuntimeMonitors(ctx context.Context) ([]RuntimeMonitor, error)

	GetProcessingState(ctx context.Context, key string) (*ProcessingState, error)
	UpsertProcessingState(ctx context.Context, state ProcessingState) error
}
