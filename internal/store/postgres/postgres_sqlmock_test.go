package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	storepkg "github.com/outpost-ops/conductor/internal/store"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	cleanup := func() {
		_ = db.Close()
	}
	return &PostgresStore{db: db}, mock, cleanup
}

func TestVerifySchema_QueryError(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT to_regclass").WillReturnError(errors.New("query error"))
	if err := verifySchema(ctx, pgStore.db); err == nil {
		t.Fatalf("expected schema verification error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifySchema_MissingTable(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil)
	mock.ExpectQuery("SELECT to_regclass").WillReturnRows(rows)
	err := verifySchema(ctx, pgStore.db)
	if err == nil {
		t.Fatalf("expected missing table error")
	}
	if got := err.Error(); got != "database schema missing: projects table not found (run infra/migrations/001_init.sql)" {
		t.Fatalf("unexpected error: %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListProjects_RowsErr(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "description", "specs", "outcome", "definition_of_done", "status", "queue_position", "blocker_reason", "blocker_details", "next_action", "last_execution_at", "created_at", "updated_at"}).
		AddRow("p-1", "a", "", "", "", "", "inactive", 0, nil, nil, nil, nil, time.Now(), time.Now()).
		AddRow("p-2", "b", "", "", "", "", "inactive", 0, nil, nil, nil, nil, time.Now(), time.Now())
	rows.RowError(1, errors.New("row error"))

	mock.ExpectQuery("SELECT (.+) FROM projects").WillReturnRows(rows)
	if _, err := pgStore.ListProjects(ctx); err == nil {
		t.Fatalf("expected rows error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListProjects_ScanError(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "description", "specs", "outcome", "definition_of_done", "status", "queue_position", "blocker_reason", "blocker_details", "next_action", "last_execution_at", "created_at", "updated_at"}).
		AddRow("p-1", "a", "", "", "", "", "inactive", "not-int", nil, nil, nil, nil, time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM projects").WillReturnRows(rows)
	if _, err := pgStore.ListProjects(ctx); err == nil {
		t.Fatalf("expected scan error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetProject_NoRows(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id"})
	mock.ExpectQuery("SELECT (.+) FROM projects WHERE id").WillReturnRows(rows)
	project, err := pgStore.GetProject(ctx, "missing")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project != nil {
		t.Fatalf("expected nil project, got %+v", project)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListProtocols_DecodesJSONColumns(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "trigger", "objective", "definition_of_done", "required_inputs", "steps", "approvals_required", "allow_no_input", "active", "schedule_enabled", "schedule_mode", "schedule_interval_minutes", "schedule_weekday", "schedule_time", "schedule_timezone", "last_scheduled_run_at", "last_scheduled_slot", "template_category", "created_at", "updated_at"}).
		AddRow("pr-1", "Sweep", "manual", "", "", []byte(`["Inbox access"]`), []byte(`["Check inbox","Tag urgent"]`), true, false, true, false, "interval", 10, "thu", "12:01", "UTC", nil, nil, nil, time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM protocols").WillReturnRows(rows)
	protocols, err := pgStore.ListProtocols(ctx)
	if err != nil {
		t.Fatalf("list protocols: %v", err)
	}
	if len(protocols) != 1 {
		t.Fatalf("expected one protocol, got %d", len(protocols))
	}
	if len(protocols[0].RequiredInputs) != 1 || protocols[0].RequiredInputs[0] != "Inbox access" {
		t.Fatalf("unexpected required inputs: %+v", protocols[0].RequiredInputs)
	}
	if len(protocols[0].Steps) != 2 {
		t.Fatalf("unexpected steps: %+v", protocols[0].Steps)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListProtocolRuns_RowsErr(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "protocol_id", "status", "started_at", "ended_at", "output", "error"}).
		AddRow("r-1", "pr-1", "success", time.Now(), time.Now(), "done", nil).
		AddRow("r-2", "pr-1", "success", time.Now(), time.Now(), "done", nil)
	rows.RowError(1, errors.New("row error"))

	mock.ExpectQuery("SELECT (.+) FROM protocol_runs").WillReturnRows(rows)
	if _, err := pgStore.ListProtocolRuns(ctx); err == nil {
		t.Fatalf("expected rows error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListActivityEvents_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "event_type", "entity_type", "entity_id", "payload", "summary", "created_at"})
	mock.ExpectQuery("SELECT (.+) FROM activity_events").WithArgs(50).WillReturnRows(rows)
	if _, err := pgStore.ListActivityEvents(ctx, 0); err != nil {
		t.Fatalf("list events: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceProjectSteps_RollbackOnInsertError(t *testing.T) {
	ctx := context.Background()
	pgStore, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM project_steps").WithArgs("p-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO project_steps").WillReturnError(errors.New("insert error"))
	mock.ExpectRollback()

	steps := []storepkg.ProjectStep{{ID: "s-1", ProjectID: "p-1", Text: "A", Status: "pending"}}
	if err := pgStore.ReplaceProjectSteps(ctx, "p-1", steps); err == nil {
		t.Fatalf("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
