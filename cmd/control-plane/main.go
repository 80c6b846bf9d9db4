package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/outpost-ops/conductor/internal/activity"
	"github.com/outpost-ops/conductor/internal/api"
	"github.com/outpost-ops/conductor/internal/config"
	"github.com/outpost-ops/conductor/internal/events"
	"github.com/outpost-ops/conductor/internal/protocols"
	"github.com/outpost-ops/conductor/internal/store/postgres"
	"github.com/outpost-ops/conductor/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newBroker = events.NewBroker
	newStore  = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	seedTemplates = func(ctx context.Context, st *postgres.PostgresStore, broker *events.Broker) error {
		registry := protocols.NewRegistry(st, activity.NewLog(st, broker))
		_, err := registry.EnsureTemplates(ctx, time.Now().UTC())
		return err
	}
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newServer          = func(store *postgres.PostgresStore, broker *events.Broker, cfg config.Config) server {
		return api.NewServer(store, broker, cfg)
	}
	notifyContext = signal.NotifyContext
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
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}
	if store != nil {
		if err := seedTemplates(ctx, store, broker); err != nil {
			log.Printf("warning: failed to seed template protocols: %v", err)
		}
	}

	workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if workflowClient != nil {
		defer workflowClient.Close()
	}
	workflowService := newWorkflowService(workflowClient, cfg.TemporalTaskQueue)
	if err := workflowService.EnsureMaintenanceWorkflow(ctx); err != nil {
		log.Printf("warning: failed to start maintenance workflow: %v", err)
	}

	server := newServer(store, broker, cfg)

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Printf("Conductor control plane listening on %s", addr)
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}
