package protocols

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/store"
)

var (
	ErrNotFound       = errors.New("protocol not found")
	ErrProtocolPaused = errors.New("protocol is paused")
)

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerEvent    = "event"
)

const (
	MinIntervalMinutes     = 10
	MaxIntervalMinutes     = 44640
	DefaultIntervalMinutes = 60
)

// Registry owns CRUD over protocol definitions. Every mutation writes its own
// activity entry before returning.
type Registry struct {
	store store.Store
	log   *activity.Log
}

func NewRegistry(st store.Store, log *activity.Log) *Registry {
	return &Registry{store: st, log: log}
}

type CreateParams struct {
	Name                    string
	Trigger                 string
	Objective               string
	DefinitionOfDone        string
	RequiredInputs          []string
	Steps                   []string
	ApprovalsRequired       bool
	AllowNoInput            bool
	ScheduleEnabled         bool
	ScheduleMode            string
	ScheduleIntervalMinutes int
	ScheduleWeekday         string
	ScheduleTime            string
	ScheduleTimezone        string
	TemplateCategory        string
}

// UpdateParams is a partial patch: nil fields keep their prior value.
type UpdateParams struct {
	Name                    *string
	Trigger                 *string
	Objective               *string
	DefinitionOfDone        *string
	RequiredInputs          []string
	Steps                   []string
	ApprovalsRequired       *bool
	AllowNoInput            *bool
	ScheduleEnabled         *bool
	ScheduleMode            *string
	ScheduleIntervalMinutes *int
	ScheduleWeekday         *string
	ScheduleTime            *string
	ScheduleTimezone        *string
}

func (r *Registry) Create(ctx context.Context, params CreateParams, now time.Time) (store.Protocol, error) {
	stamp := now.UTC().Format(time.RFC3339Nano)
	protocol := store.Protocol{
		ID:                      uuid.NewString(),
		Name:                    strings.TrimSpace(params.Name),
		Trigger:                 normalizeTrigger(params.Trigger),
		Objective:               params.Objective,
		DefinitionOfDone:        params.DefinitionOfDone,
		RequiredInputs:          append([]string{}, params.RequiredInputs...),
		Steps:                   append([]string{}, params.Steps...),
		ApprovalsRequired:       params.ApprovalsRequired,
		AllowNoInput:            params.AllowNoInput,
		Active:                  true,
		ScheduleEnabled:         params.ScheduleEnabled,
		ScheduleMode:            normalizeScheduleMode(params.ScheduleMode),
		ScheduleIntervalMinutes: ClampInterval(params.ScheduleIntervalMinutes),
		ScheduleWeekday:         normalizeWeekday(params.ScheduleWeekday),
		ScheduleTime:            normalizeTimeOfDay(params.ScheduleTime),
		ScheduleTimezone:        normalizeTimezone(params.ScheduleTimezone),
		TemplateCategory:        params.TemplateCategory,
		CreatedAt:               stamp,
		UpdatedAt:               stamp,
	}
	if err := r.store.CreateProtocol(ctx, protocol); err != nil {
		return store.Protocol{}, err
	}
	if _, err := r.log.Append(ctx, "protocol_created", "protocol", protocol.ID, map[string]any{"name": protocol.Name}, now); err != nil {
		return store.Protocol{}, err
	}
	return protocol, nil
}

func (r *Registry) Update(ctx context.Context, protocolID string, patch UpdateParams, now time.Time) (store.Protocol, error) {
	current, err := r.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return store.Protocol{}, err
	}
	if current == nil {
		return store.Protocol{}, ErrNotFound
	}
	updated := *current
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Trigger != nil {
		updated.Trigger = normalizeTrigger(*patch.Trigger)
	}
	if patch.Objective != nil {
		updated.Objective = *patch.Objective
	}
	if patch.DefinitionOfDone != nil {
		updated.DefinitionOfDone = *patch.DefinitionOfDone
	}
	if patch.RequiredInputs != nil {
		updated.RequiredInputs = append([]string{}, patch.RequiredInputs...)
	}
	if patch.Steps != nil {
		updated.Steps = append([]string{}, patch.Steps...)
	}
	if patch.ApprovalsRequired != nil {
		updated.ApprovalsRequired = *patch.ApprovalsRequired
	}
	if patch.AllowNoInput != nil {
		updated.AllowNoInput = *patch.AllowNoInput
	}
	if patch.ScheduleEnabled != nil {
		updated.ScheduleEnabled = *patch.ScheduleEnabled
	}
	if patch.ScheduleMode != nil {
		updated.ScheduleMode = normalizeScheduleMode(*patch.ScheduleMode)
	}
	if patch.ScheduleIntervalMinutes != nil {
		updated.ScheduleIntervalMinutes = ClampInterval(*patch.ScheduleIntervalMinutes)
	}
	if patch.ScheduleWeekday != nil {
		updated.ScheduleWeekday = normalizeWeekday(*patch.ScheduleWeekday)
	}
	if patch.ScheduleTime != nil {
		updated.ScheduleTime = normalizeTimeOfDay(*patch.ScheduleTime)
	}
	if patch.ScheduleTimezone != nil {
		updated.ScheduleTimezone = normalizeTimezone(*patch.ScheduleTimezone)
	}
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := r.store.UpdateProtocol(ctx, updated); err != nil {
		return store.Protocol{}, err
	}
	if _, err := r.log.Append(ctx, "protocol_updated", "protocol", updated.ID, map[string]any{"protocolId": updated.ID}, now); err != nil {
		return store.Protocol{}, err
	}
	return updated, nil
}

func (r *Registry) SetActive(ctx context.Context, protocolID string, active bool, now time.Time) error {
	current, err := r.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	updated := *current
	updated.Active = active
	updated.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	if err := r.store.UpdateProtocol(ctx, updated); err != nil {
		return err
	}
	eventType := "protocol_paused"
	if active {
		eventType = "protocol_resumed"
	}
	_, err = r.log.Append(ctx, eventType, "protocol", protocolID, map[string]any{"protocolId": protocolID, "active": active}, now)
	return err
}

func (r *Registry) Remove(ctx context.Context, protocolID string, now time.Time) error {
	current, err := r.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	if _, err := r.log.Append(ctx, "protocol_deleted", "protocol", protocolID, map[string]any{"name": current.Name, "protocolId": protocolID}, now); err != nil {
		return err
	}
	return r.store.DeleteProtocol(ctx, protocolID)
}

func (r *Registry) List(ctx context.Context) ([]store.Protocol, error) {
	return r.store.ListProtocols(ctx)
}

func (r *Registry) Get(ctx context.Context, protocolID string) (*store.Protocol, error) {
	return r.store.GetProtocol(ctx, protocolID)
}

func normalizeTrigger(value string) string {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case TriggerSchedule:
		return TriggerSchedule
	case TriggerEvent:
		return TriggerEvent
	default:
		return TriggerManual
	}
}

func normalizeScheduleMode(value string) string {
	if strings.TrimSpace(strings.ToLower(value)) == store.ScheduleModeWeekly {
		return store.ScheduleModeWeekly
	}
	return store.ScheduleModeInterval
}
