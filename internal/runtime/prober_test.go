package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpost-ops/conductor/internal/store"
	"github.com/outpost-ops/conductor/internal/store/memory"
)

func TestBuildTargets(t *testing.T) {
	targets := BuildTargets("http://gw:4100/health", "", []string{
		"whatsapp=http://bridge:3000/status",
		"email",
		"  ",
	})
	require.Len(t, targets, 3)
	require.Equal(t, MonitorKeyGateway, targets[0].Key)
	require.Equal(t, "http://gw:4100/health", targets[0].URL)
	require.Equal(t, "whatsapp", targets[1].Key)
	require.Equal(t, "http://bridge:3000/status", targets[1].URL)
	require.Equal(t, "email", targets[2].Key)
	require.Empty(t, targets[2].URL)
}

func TestBuildTargets_DesktopBridge(t *testing.T) {
	targets := BuildTargets("", "http://desktop:5900/ping", nil)
	require.Len(t, targets, 1)
	require.Equal(t, "desktop", targets[0].Key)
}

func TestProbeAll_OnlineTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := memory.New()
	prober := NewProber(st, time.Second)
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	monitors, err := prober.ProbeAll(context.Background(), []ProbeTarget{
		{Key: "gateway", Label: "Agent gateway", Medium: "gateway", URL: server.URL},
	}, now)
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	require.Equal(t, store.MonitorOnline, monitors[0].Status)
	require.Equal(t, "HTTP 200", monitors[0].Details)
	require.Equal(t, now.Format(time.RFC3339Nano), monitors[0].LastCheckedAt)

	saved, err := st.GetRuntimeMonitor(context.Background(), "gateway")
	require.NoError(t, err)
	require.Equal(t, store.MonitorOnline, saved.Status)
}

func TestProbeAll_ErrorStatusIsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	prober := NewProber(memory.New(), time.Second)
	monitors, err := prober.ProbeAll(context.Background(), []ProbeTarget{
		{Key: "gateway", URL: server.URL},
	}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, store.MonitorOffline, monitors[0].Status)
	require.Equal(t, "HTTP 503", monitors[0].Details)
}

func TestProbeAll_UnreachableTargetIsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	prober := NewProber(memory.New(), time.Second)
	monitors, err := prober.ProbeAll(context.Background(), []ProbeTarget{
		{Key: "gateway", URL: server.URL},
	}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, store.MonitorOffline, monitors[0].Status)
	require.NotEmpty(t, monitors[0].Details)
}

func TestProbeAll_BlankURLIsUnknown(t *testing.T) {
	prober := NewProber(memory.New(), 0)
	monitors, err := prober.ProbeAll(context.Background(), []ProbeTarget{
		{Key: "email", Label: "email", Medium: "email"},
	}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, store.MonitorUnknown, monitors[0].Status)
	require.Equal(t, "no probe target configured", monitors[0].Details)
}
