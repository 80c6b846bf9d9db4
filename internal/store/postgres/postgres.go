package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/outpost-ops/conductor/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"projects",
		"project_steps",
		"execution_state",
		"protocols",
		"protocol_runs",
		"protocol_run_steps",
		"activity_events",
		"runtime_monitors",
		"processing_state",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) CreateProject(ctx context.Context, project store.Project) error {
	const query = `
		INSERT INTO projects (
			id,
			name,
			description,
			specs,
			outcome,
			definition_of_done,
			status,
			queue_position,
			blocker_reason,
			blocker_details,
			next_action,
			last_execution_at,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		project.ID,
		project.Name,
		project.Description,
		project.Specs,
		project.Outcome,
		project.DefinitionOfDone,
		project.Status,
		project.QueuePosition,
		nullString(project.BlockerReason),
		nullString(project.BlockerDetails),
		nullString(project.NextAction),
		parseTimestampNull(project.LastExecutionAt),
		parseTimestampValue(project.CreatedAt),
		parseTimestampValue(project.UpdatedAt),
	)
	return err
}

const projectColumns = `
	id,
	name,
	description,
	specs,
	outcome,
	definition_of_done,
	status,
	queue_position,
	blocker_reason,
	blocker_details,
	next_action,
	last_execution_at,
	created_at,
	updated_at
`

func (p *PostgresStore) GetProject(ctx context.Context, projectID string) (*store.Project, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = $1", projectID)
	project, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (p *PostgresStore) UpdateProject(ctx context.Context, project store.Project) error {
	const query = `
		UPDATE projects SET
			name = $2,
			description = $3,
			specs = $4,
			outcome = $5,
			definition_of_done = $6,
			status = $7,
			queue_position = $8,
			blocker_reason = $9,
			blocker_details = $10,
			next_action = $11,
			last_execution_at = $12,
			updated_at = $13
		WHERE id = $1
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		project.ID,
		project.Name,
		project.Description,
		project.Specs,
		project.Outcome,
		project.DefinitionOfDone,
		project.Status,
		project.QueuePosition,
		nullString(project.BlockerReason),
		nullString(project.BlockerDetails),
		nullString(project.NextAction),
		parseTimestampNull(project.LastExecutionAt),
		parseTimestampValue(project.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, project)
	}
	return results, rows.Err()
}

func (p *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", projectID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (store.Project, error) {
	var project store.Project
	var blockerReason sql.NullString
	var blockerDetails sql.NullString
	var nextAction sql.NullString
	var lastExecutionAt sql.NullTime
	var createdAt time.Time
	var updatedAt time.Time
	if err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.Specs,
		&project.Outcome,
		&project.DefinitionOfDone,
		&project.Status,
		&project.QueuePosition,
		&blockerReason,
		&blockerDetails,
		&nextAction,
		&lastExecutionAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return store.Project{}, err
	}
	if blockerReason.Valid {
		project.BlockerReason = blockerReason.String
	}
	if blockerDetails.Valid {
		project.BlockerDetails = blockerDetails.String
	}
	if nextAction.Valid {
		project.NextAction = nextAction.String
	}
	if lastExecutionAt.Valid {
		project.LastExecutionAt = lastExecutionAt.Time.UTC().Format(time.RFC3339Nano)
	}
	project.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	project.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return project, nil
}

func (p *PostgresStore) ReplaceProjectSteps(ctx context.Context, projectID string, steps []store.ProjectStep) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM project_steps WHERE project_id = $1", projectID); err != nil {
		return err
	}
	const query = `
		INSERT INTO project_steps (id, project_id, step_index, text, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, step := range steps {
		if _, err := tx.ExecContext(
			ctx,
			query,
			step.ID,
			projectID,
			step.StepIndex,
			step.Text,
			step.Status,
			parseTimestampValue(step.UpdatedAt),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) UpdateProjectStep(ctx context.Context, step store.ProjectStep) error {
	const query = `
		UPDATE project_steps SET status = $2, text = $3, updated_at = $4 WHERE id = $1
	`
	_, err := p.db.ExecContext(ctx, query, step.ID, step.Status, step.Text, parseTimestampValue(step.UpdatedAt))
	return err
}

func (p *PostgresStore) ListProjectSteps(ctx context.Context, projectID string) ([]store.ProjectStep, error) {
	const query = `
		SELECT id, project_id, step_index, text, status, updated_at
		FROM project_steps
		WHERE project_id = $1
		ORDER BY step_index ASC
	`
	rows, err := p.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ProjectStep{}
	for rows.Next() {
		var step store.ProjectStep
		var updatedAt time.Time
		if err := rows.Scan(&step.ID, &step.ProjectID, &step.StepIndex, &step.Text, &step.Status, &updatedAt); err != nil {
			return nil, err
		}
		step.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
		results = append(results, step)
	}
	return results, rows.Err()
}

func (p *PostgresStore) GetExecutionState(ctx context.Context) (*store.ExecutionState, error) {
	var state store.ExecutionState
	var updatedAt time.Time
	err := p.db.QueryRowContext(ctx, "SELECT mode, updated_at FROM execution_state WHERE id = 1").Scan(&state.Mode, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	state.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &state, nil
}

func (p *PostgresStore) UpsertExecutionState(ctx context.Context, state store.ExecutionState) error {
	const query = `
		INSERT INTO execution_state (id, mode, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id)
		DO UPDATE SET
			mode = EXCLUDED.mode,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(ctx, query, state.Mode, parseTimestampValue(state.UpdatedAt))
	return err
}

func (p *PostgresStore) CreateProtocol(ctx context.Context, protocol store.Protocol) error {
	inputsBytes, err := json.Marshal(protocol.RequiredInputs)
	if err != nil {
		return err
	}
	stepsBytes, err := json.Marshal(protocol.Steps)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO protocols (
			id,
			name,
			trigger,
			objective,
			definition_of_done,
			required_inputs,
			steps,
			approvals_required,
			allow_no_input,
			active,
			schedule_enabled,
			schedule_mode,
			schedule_interval_minutes,
			schedule_weekday,
			schedule_time,
			schedule_timezone,
			last_scheduled_run_at,
			last_scheduled_slot,
			template_category,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		protocol.ID,
		protocol.Name,
		protocol.Trigger,
		protocol.Objective,
		protocol.DefinitionOfDone,
		inputsBytes,
		stepsBytes,
		protocol.ApprovalsRequired,
		protocol.AllowNoInput,
		protocol.Active,
		protocol.ScheduleEnabled,
		nullString(protocol.ScheduleMode),
		protocol.ScheduleIntervalMinutes,
		nullString(protocol.ScheduleWeekday),
		nullString(protocol.ScheduleTime),
		nullString(protocol.ScheduleTimezone),
		parseTimestampNull(protocol.LastScheduledRunAt),
		nullString(protocol.LastScheduledSlot),
		nullString(protocol.TemplateCategory),
		parseTimestampValue(protocol.CreatedAt),
		parseTimestampValue(protocol.UpdatedAt),
	)
	return err
}

const protocolColumns = `
	id,
	name,
	trigger,
	objective,
	definition_of_done,
	required_inputs,
	steps,
	approvals_required,
	allow_no_input,
	active,
	schedule_enabled,
	schedule_mode,
	schedule_interval_minutes,
	schedule_weekday,
	schedule_time,
	schedule_timezone,
	last_scheduled_run_at,
	last_scheduled_slot,
	template_category,
	created_at,
	updated_at
`

func (p *PostgresStore) GetProtocol(ctx context.Context, protocolID string) (*store.Protocol, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+protocolColumns+" FROM protocols WHERE id = $1", protocolID)
	protocol, err := scanProtocol(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &protocol, nil
}

func (p *PostgresStore) UpdateProtocol(ctx context.Context, protocol store.Protocol) error {
	inputsBytes, err := json.Marshal(protocol.RequiredInputs)
	if err != nil {
		return err
	}
	stepsBytes, err := json.Marshal(protocol.Steps)
	if err != nil {
		return err
	}
	const query = `
		UPDATE protocols SET
			name = $2,
			trigger = $3,
			objective = $4,
			definition_of_done = $5,
			required_inputs = $6,
			steps = $7,
			approvals_required = $8,
			allow_no_input = $9,
			active = $10,
			schedule_enabled = $11,
			schedule_mode = $12,
			schedule_interval_minutes = $13,
			schedule_weekday = $14,
			schedule_time = $15,
			schedule_timezone = $16,
			last_scheduled_run_at = $17,
			last_scheduled_slot = $18,
			template_category = $19,
			updated_at = $20
		WHERE id = $1
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		protocol.ID,
		protocol.Name,
		protocol.Trigger,
		protocol.Objective,
		protocol.DefinitionOfDone,
		inputsBytes,
		stepsBytes,
		protocol.ApprovalsRequired,
		protocol.AllowNoInput,
		protocol.Active,
		protocol.ScheduleEnabled,
		nullString(protocol.ScheduleMode),
		protocol.ScheduleIntervalMinutes,
		nullString(protocol.ScheduleWeekday),
		nullString(protocol.ScheduleTime),
		nullString(protocol.ScheduleTimezone),
		parseTimestampNull(protocol.LastScheduledRunAt),
		nullString(protocol.LastScheduledSlot),
		nullString(protocol.TemplateCategory),
		parseTimestampValue(protocol.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) ListProtocols(ctx context.Context) ([]store.Protocol, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT "+protocolColumns+" FROM protocols ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Protocol{}
	for rows.Next() {
		protocol, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, protocol)
	}
	return results, rows.Err()
}

func (p *PostgresStore) DeleteProtocol(ctx context.Context, protocolID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM protocols WHERE id = $1", protocolID)
	return err
}

func scanProtocol(row rowScanner) (store.Protocol, error) {
	var protocol store.Protocol
	var inputsBytes []byte
	var stepsBytes []byte
	var scheduleMode sql.NullString
	var scheduleWeekday sql.NullString
	var scheduleTime sql.NullString
	var scheduleTimezone sql.NullString
	var lastScheduledRunAt sql.NullTime
	var lastScheduledSlot sql.NullString
	var templateCategory sql.NullString
	var createdAt time.Time
	var updatedAt time.Time
	if err := row.Scan(
		&protocol.ID,
		&protocol.Name,
		&protocol.Trigger,
		&protocol.Objective,
		&protocol.DefinitionOfDone,
		&inputsBytes,
		&stepsBytes,
		&protocol.ApprovalsRequired,
		&protocol.AllowNoInput,
		&protocol.Active,
		&protocol.ScheduleEnabled,
		&scheduleMode,
		&protocol.ScheduleIntervalMinutes,
		&scheduleWeekday,
		&scheduleTime,
		&scheduleTimezone,
		&lastScheduledRunAt,
		&lastScheduledSlot,
		&templateCategory,
		&createdAt,
		&updatedAt,
	); err != nil {
		return store.Protocol{}, err
	}
	protocol.RequiredInputs = decodeStringSlice(inputsBytes)
	protocol.Steps = decodeStringSlice(stepsBytes)
	if scheduleMode.Valid {
		protocol.ScheduleMode = scheduleMode.String
	}
	if scheduleWeekday.Valid {
		protocol.ScheduleWeekday = scheduleWeekday.String
	}
	if scheduleTime.Valid {
		protocol.ScheduleTime = scheduleTime.String
	}
	if scheduleTimezone.Valid {
		protocol.ScheduleTimezone = scheduleTimezone.String
	}
	if lastScheduledRunAt.Valid {
		protocol.LastScheduledRunAt = lastScheduledRunAt.Time.UTC().Format(time.RFC3339Nano)
	}
	if lastScheduledSlot.Valid {
		protocol.LastScheduledSlot = lastScheduledSlot.String
	}
	if templateCategory.Valid {
		protocol.TemplateCategory = templateCategory.String
	}
	protocol.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	protocol.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return protocol, nil
}

func (p *PostgresStore) CreateProtocolRun(ctx context.Context, run store.ProtocolRun) error {
	const query = `
		INSERT INTO protocol_runs (id, protocol_id, status, started_at, ended_at, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.ProtocolID,
		run.Status,
		parseTimestampValue(run.StartedAt),
		parseTimestampNull(run.EndedAt),
		run.Output,
		nullString(run.Error),
	)
	return err
}

func (p *PostgresStore) GetProtocolRun(ctx context.Context, runID string) (*store.ProtocolRun, error) {
	const query = `
		SELECT id, protocol_id, status, started_at, ended_at, output, error
		FROM protocol_runs
		WHERE id = $1
	`
	run, err := scanProtocolRun(p.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (p *PostgresStore) UpdateProtocolRun(ctx context.Context, run store.ProtocolRun) error {
	const query = `
		UPDATE protocol_runs SET status = $2, ended_at = $3, output = $4, error = $5 WHERE id = $1
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.Status,
		parseTimestampNull(run.EndedAt),
		run.Output,
		nullString(run.Error),
	)
	return err
}

func (p *PostgresStore) ListProtocolRuns(ctx context.Context) ([]store.ProtocolRun, error) {
	const query = `
		SELECT id, protocol_id, status, started_at, ended_at, output, error
		FROM protocol_runs
		ORDER BY started_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ProtocolRun{}
	for rows.Next() {
		run, err := scanProtocolRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, run)
	}
	return results, rows.Err()
}

func scanProtocolRun(row rowScanner) (store.ProtocolRun, error) {
	var run store.ProtocolRun
	var startedAt time.Time
	var endedAt sql.NullTime
	var runError sql.NullString
	if err := row.Scan(
		&run.ID,
		&run.ProtocolID,
		&run.Status,
		&startedAt,
		&endedAt,
		&run.Output,
		&runError,
	); err != nil {
		return store.ProtocolRun{}, err
	}
	run.StartedAt = startedAt.UTC().Format(time.RFC3339Nano)
	if endedAt.Valid {
		run.EndedAt = endedAt.Time.UTC().Format(time.RFC3339Nano)
	}
	if runError.Valid {
		run.Error = runError.String
	}
	return run, nil
}

func (p *PostgresStore) CreateProtocolRunStep(ctx context.Context, step store.ProtocolRunStep) error {
	const query = `
		INSERT INTO protocol_run_steps (id, run_id, step_index, step_text, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		step.ID,
		step.RunID,
		step.StepIndex,
		step.StepText,
		step.Status,
		parseTimestampValue(step.StartedAt),
		parseTimestampNull(step.EndedAt),
	)
	return err
}

func (p *PostgresStore) UpdateProtocolRunStep(ctx context.Context, step store.ProtocolRunStep) error {
	const query = `
		UPDATE protocol_run_steps SET status = $2, ended_at = $3 WHERE id = $1
	`
	_, err := p.db.ExecContext(ctx, query, step.ID, step.Status, parseTimestampNull(step.EndedAt))
	return err
}

func (p *PostgresStore) ListProtocolRunSteps(ctx context.Context, runID string) ([]store.ProtocolRunStep, error) {
	const query = `
		SELECT id, run_id, step_index, step_text, status, started_at, ended_at
		FROM protocol_run_steps
		WHERE run_id = $1
		ORDER BY step_index ASC
	`
	rows, err := p.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ProtocolRunStep{}
	for rows.Next() {
		var step store.ProtocolRunStep
		var startedAt time.Time
		var endedAt sql.NullTime
		if err := rows.Scan(&step.ID, &step.RunID, &step.StepIndex, &step.StepText, &step.Status, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		step.StartedAt = startedAt.UTC().Format(time.RFC3339Nano)
		if endedAt.Valid {
			step.EndedAt = endedAt.Time.UTC().Format(time.RFC3339Nano)
		}
		results = append(results, step)
	}
	return results, rows.Err()
}

func (p *PostgresStore) AppendActivityEvent(ctx context.Context, event store.ActivityEvent) error {
	const query = `
		INSERT INTO activity_events (id, event_type, entity_type, entity_id, payload, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	payload := event.Payload
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}
	_, err := p.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.EventType,
		event.EntityType,
		event.EntityID,
		payload,
		event.Summary,
		parseTimestampValue(event.CreatedAt),
	)
	return err
}

func (p *PostgresStore) ListActivityEvents(ctx context.Context, limit int) ([]store.ActivityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, event_type, entity_type, entity_id, payload, summary, created_at
		FROM activity_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	return p.queryActivityEvents(ctx, query, limit)
}

func (p *PostgresStore) ListActivityEventsByEntity(ctx context.Context, entityType string, entityID string) ([]store.ActivityEvent, error) {
	const query = `
		SELECT id, event_type, entity_type, entity_id, payload, summary, created_at
		FROM activity_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`
	return p.queryActivityEvents(ctx, query, entityType, entityID)
}

func (p *PostgresStore) queryActivityEvents(ctx context.Context, query string, args ...any) ([]store.ActivityEvent, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ActivityEvent{}
	for rows.Next() {
		var event store.ActivityEvent
		var createdAt time.Time
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.EntityType,
			&event.EntityID,
			&event.Payload,
			&event.Summary,
			&createdAt,
		); err != nil {
			return nil, err
		}
		event.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		results = append(results, event)
	}
	return results, rows.Err()
}

func (p *PostgresStore) UpsertRuntimeMonitor(ctx context.Context, monitor store.RuntimeMonitor) error {
	const query = `
		INSERT INTO runtime_monitors (key, label, medium, target, status, details, last_checked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key)
		DO UPDATE SET
			label = EXCLUDED.label,
			medium = EXCLUDED.medium,
			target = EXCLUDED.target,
			status = EXCLUDED.status,
			details = EXCLUDED.details,
			last_checked_at = EXCLUDED.last_checked_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		monitor.Key,
		monitor.Label,
		monitor.Medium,
		monitor.Target,
		monitor.Status,
		monitor.Details,
		parseTimestampValue(monitor.LastCheckedAt),
		parseTimestampValue(monitor.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) GetRuntimeMonitor(ctx context.Context, key string) (*store.RuntimeMonitor, error) {
	const query = `
		SELECT key, label, medium, target, status, details, last_checked_at, updated_at
		FROM runtime_monitors
		WHERE key = $1
	`
	monitor, err := scanRuntimeMonitor(p.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &monitor, nil
}

func (p *PostgresStore) ListRuntimeMonitors(ctx context.Context) ([]store.RuntimeMonitor, error) {
	const query = `
		SELECT key, label, medium, target, status, details, last_checked_at, updated_at
		FROM runtime_monitors
		ORDER BY key ASC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.RuntimeMonitor{}
	for rows.Next() {
		monitor, err := scanRuntimeMonitor(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, monitor)
	}
	return results, rows.Err()
}

func scanRuntimeMonitor(row rowScanner) (store.RuntimeMonitor, error) {
	var monitor store.RuntimeMonitor
	var lastCheckedAt time.Time
	var updatedAt time.Time
	if err := row.Scan(
		&monitor.Key,
		&monitor.Label,
		&monitor.Medium,
		&monitor.Target,
		&monitor.Status,
		&monitor.Details,
		&lastCheckedAt,
		&updatedAt,
	); err != nil {
		return store.RuntimeMonitor{}, err
	}
	monitor.LastCheckedAt = lastCheckedAt.UTC().Format(time.RFC3339Nano)
	monitor.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return monitor, nil
}

func (p *PostgresStore) GetProcessingState(ctx context.Context, key string) (*store.ProcessingState, error) {
	const query = `
		SELECT key, processing, reason, timeout_at, updated_at
		FROM processing_state
		WHERE key = $1
	`
	var state store.ProcessingState
	var reason sql.NullString
	var timeoutAt sql.NullTime
	var updatedAt time.Time
	err := p.db.QueryRowContext(ctx, query, key).Scan(&state.Key, &state.Processing, &reason, &timeoutAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if reason.Valid {
		state.Reason = reason.String
	}
	if timeoutAt.Valid {
		state.TimeoutAt = timeoutAt.Time.UTC().Format(time.RFC3339Nano)
	}
	state.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &state, nil
}

func (p *PostgresStore) UpsertProcessingState(ctx context.Context, state store.ProcessingState) error {
	const query = `
		INSERT INTO processing_state (key, processing, reason, timeout_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key)
		DO UPDATE SET
			processing = EXCLUDED.processing,
			reason = EXCLUDED.reason,
			timeout_at = EXCLUDED.timeout_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		state.Key,
		state.Processing,
		nullString(state.Reason),
		parseTimestampNull(state.TimeoutAt),
		parseTimestampValue(state.UpdatedAt),
	)
	return err
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func parseTimestampNull(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func decodeStringSlice(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	values := []string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
