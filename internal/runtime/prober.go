package runtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/outpost-ops/conductor/internal/store"
)

// ProbeTarget names one external dependency the watchdog keeps an eye on.
type ProbeTarget struct {
	Key    string
	Label  string
	Medium string
	URL    string
}

// BuildTargets assembles the probe set from configuration. Mediums are
// "name" or "name=url" entries; ones without a URL still get a monitor row.
func BuildTargets(gatewayURL string, desktopURL string, mediums []string) []ProbeTarget {
	targets := []ProbeTarget{}
	if strings.TrimSpace(gatewayURL) != "" {
		targets = append(targets, ProbeTarget{
			Key:    MonitorKeyGateway,
			Label:  "Agent gateway",
			Medium: "gateway",
			URL:    gatewayURL,
		})
	}
	if strings.TrimSpace(desktopURL) != "" {
		targets = append(targets, ProbeTarget{
			Key:    "desktop",
			Label:  "Desktop bridge",
			Medium: "desktop",
			URL:    desktopURL,
		})
	}
	for _, medium := range mediums {
		parts := strings.SplitN(medium, "=", 2)
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		target := ProbeTarget{Key: name, Label: name, Medium: name}
		if len(parts) == 2 {
			target.URL = strings.TrimSpace(parts[1])
		}
		targets = append(targets, target)
	}
	return targets
}

// Prober checks dependency health over HTTP and persists the result as
// RuntimeMonitor rows. Each check is bounded so one unreachable target
// cannot stall the whole sweep.
type Prober struct {
	store   store.Store
	client  *http.Client
	timeout time.Duration
}

func NewProber(st store.Store, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		store:   st,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// ProbeAll checks every target and upserts its monitor row. Targets without
// a URL are recorded as unknown rather than skipped, so operators see them.
func (p *Prober) ProbeAll(ctx context.Context, targets []ProbeTarget, now time.Time) ([]store.RuntimeMonitor, error) {
	monitors := make([]store.RuntimeMonitor, 0, len(targets))
	for _, target := range targets {
		monitor := p.probe(ctx, target, now)
		if err := p.store.UpsertRuntimeMonitor(ctx, monitor); err != nil {
			return nil, fmt.Errorf("upsert monitor %s: %w", target.Key, err)
		}
		monitors = append(monitors, monitor)
	}
	return monitors, nil
}

func (p *Prober) Monitors(ctx context.Context) ([]store.RuntimeMonitor, error) {
	return p.store.ListRuntimeMonitors(ctx)
}

func (p *Prober) probe(ctx context.Context, target ProbeTarget, now time.Time) store.RuntimeMonitor {
	stamp := now.UTC().Format(time.RFC3339Nano)
	monitor := store.RuntimeMonitor{
		Key:           target.Key,
		Label:         target.Label,
		Medium:        target.Medium,
		Target:        target.URL,
		Status:        store.MonitorUnknown,
		LastCheckedAt: stamp,
		UpdatedAt:     stamp,
	}
	if strings.TrimSpace(target.URL) == "" {
		monitor.Details = "no probe target configured"
		return monitor
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.URL, nil)
	if err != nil {
		monitor.Status = store.MonitorOffline
		monitor.Details = err.Error()
		return monitor
	}
	resp, err := p.client.Do(req)
	if err != nil {
		monitor.Status = store.MonitorOffline
		monitor.Details = err.Error()
		return monitor
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		monitor.Status = store.MonitorOnline
		monitor.Details = fmt.Sprintf("HTTP %d", resp.StatusCode)
	} else {
		monitor.Status = store.MonitorOffline
		monitor.Details = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return monitor
}
