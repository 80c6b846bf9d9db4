package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/config"
	"github.com/outpost-ops/conductor/internal/events"
	"github.com/outpost-ops/conductor/internal/projects"
	"github.com/outpost-ops/conductor/internal/protocols"
	"github.com/outpost-ops/conductor/internal/runtime"
	"github.com/outpost-ops/conductor/internal/store"
)

type Server struct {
	store     store.Store
	broker    Broker
	log       *activity.Log
	projects  *projects.Engine
	registry  *protocols.Registry
	runs      *protocols.Engine
	scheduler *protocols.Scheduler
	watchdog  *runtime.Watchdog
	prober    *runtime.Prober
	cfg       config.Config
}

type Broker interface {
	Publish(event events.ActivityEvent)
	Subscribe(ctx context.Context, topic string) <-chan events.ActivityEvent
}

func NewServer(st store.Store, broker Broker, cfg config.Config) *Server {
	log := activity.NewLog(st, broker)
	runEngine := protocols.NewEngine(st, log)
	return &Server{
		store:     st,
		broker:    broker,
		log:       log,
		projects:  projects.NewEngine(st, log),
		registry:  protocols.NewRegistry(st, log),
		runs:      runEngine,
		scheduler: protocols.NewScheduler(st, runEngine, log),
		watchdog:  runtime.NewWatchdog(st, log),
		prober:    runtime.NewProber(st, time.Duration(cfg.ProbeTimeoutSecs)*time.Second),
		cfg:       cfg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/projects", s.createProject)
	r.Get("/projects", s.listProjects)
	r.Get("/projects/queue", s.listProjectQueue)
	r.Post("/projects/activate-next", s.activateNextProject)
	r.Post("/projects/tick", s.runProjectTick)
	r.Get("/projects/{id}", s.getProject)
	r.Put("/projects/{id}", s.updateProject)
	r.Delete("/projects/{id}", s.deleteProject)
	r.Post("/projects/{id}/enqueue", s.enqueueProject)
	r.Post("/projects/{id}/block", s.blockProject)
	r.Post("/projects/{id}/resolve", s.resolveProject)
	r.Post("/projects/{id}/deactivate", s.deactivateProject)
	r.Post("/projects/{id}/plan", s.buildProjectPlan)
	r.Get("/projects/{id}/steps", s.listProjectSteps)
	r.Get("/execution", s.getExecutionState)
	r.Post("/execution/mode", s.setExecutionMode)

	r.Post("/protocols", s.createProtocol)
	r.Get("/protocols", s.listProtocols)
	r.Post("/protocols/seed-templates", s.seedTemplateProtocols)
	r.Post("/protocols/run-due", s.runDueProtocols)
	r.Get("/protocols/analytics", s.protocolAnalytics)
	r.Get("/protocols/{id}", s.getProtocol)
	r.Put("/protocols/{id}", s.updateProtocol)
	r.Delete("/protocols/{id}", s.deleteProtocol)
	r.Post("/protocols/{id}/active", s.setProtocolActive)
	r.Post("/protocols/{id}/run", s.runProtocol)
	r.Get("/protocol-runs", s.listProtocolRuns)
	r.Get("/protocol-runs/{id}", s.getProtocolRun)
	r.Get("/protocol-runs/{id}/steps", s.listProtocolRunSteps)

	r.Get("/activity", s.listActivity)
	r.Get("/activity/stream", s.streamActivity)
	r.Get("/activity/{entityType}/{entityID}", s.listActivityByEntity)

	r.Get("/runtime/monitors", s.listRuntimeMonitors)
	r.Post("/runtime/probe", s.probeRuntime)
	r.Get("/runtime/processing", s.getProcessing)
	r.Post("/runtime/processing", s.setProcessing)
	r.Post("/runtime/failsafe-tick", s.runFailSafeTick)
	r.Post("/ops/tick", s.runMaintenanceTick)
	r.Get("/ops/snapshot", s.opsSnapshot)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet && strings.HasPrefix(cleanPath, "/activity") {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready" || cleanPath == "/runtime/monitors") {
		return true
	}
	if method == http.MethodOptions {
		return true
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.ListProjects(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	if strings.TrimSpace(s.cfg.GatewayProbeURL) == "" {
		subsystems["gateway"] = subsystemStatus{Status: "skipped"}
	} else {
		monitor, err := s.store.GetRuntimeMonitor(ctx, runtime.MonitorKeyGateway)
		switch {
		case err != nil:
			subsystems["gateway"] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
		case monitor == nil || monitor.Status == store.MonitorUnknown:
			subsystems["gateway"] = subsystemStatus{Status: "unknown"}
		case monitor.Status == store.MonitorOffline:
			subsystems["gateway"] = subsystemStatus{Status: "error", Error: monitor.Details}
			overall = http.StatusServiceUnavailable
		default:
			subsystems["gateway"] = subsystemStatus{Status: "ok"}
		}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) probeTargets() []runtime.ProbeTarget {
	return runtime.BuildTargets(s.cfg.GatewayProbeURL, s.cfg.DesktopProbeURL, s.cfg.ActiveMediums)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
