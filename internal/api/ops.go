package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/outpost-ops/conductor/internal/store"
)

const (
	snapshotActiveLimit   = 3
	snapshotQueueLimit    = 5
	snapshotBlockedLimit  = 5
	snapshotActivityLimit = 25
)

type systemStatusResponse struct {
	Label  string `json:"label"`
	Tone   string `json:"tone"`
	Detail string `json:"detail"`
}

type opsSnapshotResponse struct {
	Mode           string                  `json:"mode"`
	Now            []projectResponse       `json:"now"`
	Next           []projectResponse       `json:"next"`
	Blocked        []projectResponse       `json:"blocked"`
	LatestActivity []activityEventResponse `json:"latest_activity"`
	Status         systemStatusResponse    `json:"status"`
}

// opsSnapshot is the one-call operator dashboard read: execution mode, what is
// running now, what is up next, what is stuck, the freshest activity, and an
// overall status derived from the latest protocol run.
func (s *Server) opsSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := s.projects.ExecutionState(ctx, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	all, err := s.store.ListProjects(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	active := []store.Project{}
	blocked := []store.Project{}
	blockedCount := 0
	for _, project := range all {
		switch project.Status {
		case store.ProjectStatusActive:
			if len(active) < snapshotActiveLimit {
				active = append(active, project)
			}
		case store.ProjectStatusBlocked:
			blockedCount++
			if len(blocked) < snapshotBlockedLimit {
				blocked = append(blocked, project)
			}
		}
	}

	queue, err := s.projects.ListQueue(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(queue) > snapshotQueueLimit {
		queue = queue[:snapshotQueueLimit]
	}

	latest, err := s.store.ListActivityEvents(ctx, snapshotActivityLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	runs, err := s.store.ListProtocolRuns(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, opsSnapshotResponse{
		Mode:           state.Mode,
		Now:            toProjectResponses(active),
		Next:           toProjectResponses(queue),
		Blocked:        toProjectResponses(blocked),
		LatestActivity: toActivityResponses(latest),
		Status:         systemStatus(runs, blockedCount),
	})
}

// systemStatus collapses run and blocker state into one operator-facing tag:
// a protocol mid-flight wins, then outstanding blockers, then idle.
func systemStatus(runs []store.ProtocolRun, blockedCount int) systemStatusResponse {
	if len(runs) > 0 && runs[0].Status == store.RunStatusRunning {
		return systemStatusResponse{Label: "Running", Tone: "#0a7", Detail: "Protocol execution in progress"}
	}
	if blockedCount > 0 {
		return systemStatusResponse{Label: "Blocked", Tone: "#c73", Detail: fmt.Sprintf("%d blocked project(s)", blockedCount)}
	}
	return systemStatusResponse{Label: "Idle", Tone: "#666", Detail: "No active protocol run"}
}
