package protocols

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outpost-ops/conductor/internal/store"
)

type TemplateSpec struct {
	Name             string
	Category         string
	Objective        string
	DefinitionOfDone string
	RequiredInputs   []string
	Steps            []string
}

var templateSpecs = []TemplateSpec{
	{
		Name:             "Daily Ops Triage",
		Category:         "operations",
		Objective:        "Review Now/Next/Blocked and post an action summary.",
		DefinitionOfDone: "Updated priorities and clear next actions posted.",
		RequiredInputs:   []string{"Current task board", "Inbox access"},
		Steps:            []string{"Review Now", "Review Next", "Identify blockers", "Send summary"},
	},
	{
		Name:             "Release Readiness",
		Category:         "delivery",
		Objective:        "Validate build, blockers, and deployment readiness.",
		DefinitionOfDone: "Go/no-go decision documented with blockers.",
		RequiredInputs:   []string{"Repo access", "Build environment", "Deploy checklist"},
		Steps:            []string{"Run build", "Check blockers", "Confirm env", "Ship decision"},
	},
	{
		Name:             "Inbox Escalation Sweep",
		Category:         "communications",
		Objective:        "Find urgent messages and route decisions.",
		DefinitionOfDone: "Urgent items triaged with owners and deadlines.",
		RequiredInputs:   []string{"Inbox access", "Priority rules"},
		Steps:            []string{"Check inbox", "Tag urgent", "Draft replies", "Escalate blockers"},
	},
}

func TemplateProtocols() []TemplateSpec {
	copyOf := make([]TemplateSpec, len(templateSpecs))
	copy(copyOf, templateSpecs)
	return copyOf
}

// EnsureTemplates seeds the fixed starter protocols, skipping any whose name
// already exists, and returns the ids it created.
func (r *Registry) EnsureTemplates(ctx context.Context, now time.Time) ([]string, error) {
	existing, err := r.store.ListProtocols(ctx)
	if err != nil {
		return nil, err
	}
	existingNames := make(map[string]struct{}, len(existing))
	for _, protocol := range existing {
		existingNames[strings.ToLower(strings.TrimSpace(protocol.Name))] = struct{}{}
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	created := []string{}
	for _, spec := range templateSpecs {
		if _, ok := existingNames[strings.ToLower(spec.Name)]; ok {
			continue
		}
		protocol := store.Protocol{
			ID:                      uuid.NewString(),
			Name:                    spec.Name,
			Trigger:                 TriggerManual,
			Objective:               spec.Objective,
			DefinitionOfDone:        spec.DefinitionOfDone,
			RequiredInputs:          append([]string{}, spec.RequiredInputs...),
			Steps:                   append([]string{}, spec.Steps...),
			ApprovalsRequired:       true,
			AllowNoInput:            false,
			Active:                  true,
			ScheduleEnabled:         false,
			ScheduleMode:            store.ScheduleModeInterval,
			ScheduleIntervalMinutes: MinIntervalMinutes,
			ScheduleWeekday:         normalizeWeekday(""),
			ScheduleTime:            normalizeTimeOfDay(""),
			ScheduleTimezone:        "UTC",
			TemplateCategory:        spec.Category,
			CreatedAt:               stamp,
			UpdatedAt:               stamp,
		}
		if err := r.store.CreateProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		created = append(created, protocol.ID)
	}
	if _, err := r.log.Append(ctx, "protocol_templates_seeded", "protocol", "templates", map[string]any{"count": len(created)}, now); err != nil {
		return nil, err
	}
	return created, nil
}
