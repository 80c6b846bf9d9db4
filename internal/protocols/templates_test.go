package protocols

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureTemplates_SeedsStarterProtocols(t *testing.T) {
	registry, st := newTestRegistry(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	created, err := registry.EnsureTemplates(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, created, len(TemplateProtocols()))

	protocols, err := st.ListProtocols(context.Background())
	require.NoError(t, err)
	require.Len(t, protocols, len(created))
	for _, protocol := range protocols {
		require.True(t, protocol.Active)
		require.True(t, protocol.ApprovalsRequired)
		require.Equal(t, TriggerManual, protocol.Trigger)
		require.False(t, protocol.ScheduleEnabled)
		require.NotEmpty(t, protocol.TemplateCategory)
		require.NotEmpty(t, protocol.Steps)
	}
}

func TestEnsureTemplates_SkipsExistingByName(t *testing.T) {
	registry, st := newTestRegistry(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	// Pre-existing protocol with a template name, case-insensitively.
	_, err := registry.Create(context.Background(), CreateParams{Name: "daily ops triage"}, now)
	require.NoError(t, err)

	created, err := registry.EnsureTemplates(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, created, len(TemplateProtocols())-1)

	protocols, err := st.ListProtocols(context.Background())
	require.NoError(t, err)
	require.Len(t, protocols, len(TemplateProtocols()))
}

func TestEnsureTemplates_Idempotent(t *testing.T) {
	registry, st := newTestRegistry(t)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	_, err := registry.EnsureTemplates(context.Background(), now)
	require.NoError(t, err)
	created, err := registry.EnsureTemplates(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, created)

	protocols, err := st.ListProtocols(context.Background())
	require.NoError(t, err)
	require.Len(t, protocols, len(TemplateProtocols()))
}
