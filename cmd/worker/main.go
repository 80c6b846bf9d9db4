package main

import (
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/outpost-ops/conductor/internal/config"
	"github.com/outpost-ops/conductor/internal/runtime"
	"github.com/outpost-ops/conductor/internal/store/postgres"
	"github.com/outpost-ops/conductor/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	newStore     = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	newActivities = func(st *postgres.PostgresStore, probeTimeout time.Duration, targets []runtime.ProbeTarget) *workflows.TickActivities {
		return workflows.NewTickActivities(st, probeTimeout, targets)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	targets := runtime.BuildTargets(cfg.GatewayProbeURL, cfg.DesktopProbeURL, cfg.ActiveMediums)
	activities := newActivities(store, time.Duration(cfg.ProbeTimeoutSecs)*time.Second, targets)

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.MaintenanceWorkflow)
	w.RegisterActivity(activities)

	log.Println("Conductor maintenance worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
