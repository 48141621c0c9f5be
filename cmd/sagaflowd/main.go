// Command sagaflowd runs a self-contained activity tracking daemon: a
// command registry with a couple of demonstration commands, the NATS
// command bus (embedded unless configured otherwise), and the recurring
// command scheduler, all under one lifecycle runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/config"
	"github.com/sagaflow/sagaflow/pkg/observability"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
	natsbus "github.com/sagaflow/sagaflow/pkg/pipeline/nats"
	"github.com/sagaflow/sagaflow/pkg/recurring"
	"github.com/sagaflow/sagaflow/pkg/runner"
	"github.com/sagaflow/sagaflow/pkg/runtime/bus"
	"github.com/sagaflow/sagaflow/pkg/sagaflow"
	"github.com/sagaflow/sagaflow/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sagaflowd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.SetDefaults()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	provider := sdkmetric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	metrics, err := observability.NewMetrics(provider.Meter("sagaflow"))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	registry := schema.NewRegistry()
	if err := registerCommands(registry); err != nil {
		return err
	}

	module := sagaflow.New(registry,
		sagaflow.WithLogger(logger),
		sagaflow.WithMetrics(metrics),
		sagaflow.WithStatusCapacity(cfg.StatusCapacity),
	)

	module.Broadcaster().OnStatusChanged(func(cs *activity.CommandStatus) error {
		logger.Info("command status",
			slog.String("command_id", cs.CommandID.String()),
			slog.String("name", cs.Name),
			slog.String("status", cs.Status.String()),
			slog.Float64("progress", cs.Progress))
		return nil
	})

	dispatcher := pipeline.NewDispatcher(module.Recorder(), logger)
	registerHandlers(dispatcher, logger)

	busService := bus.New(module, dispatcher,
		bus.WithConfig(natsbus.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			QueueGroup:    cfg.NATS.QueueGroup,
		}),
		bus.WithLogger(logger),
		bus.WithMetrics(metrics),
	)

	scheduler, err := recurring.NewScheduler(registry, module, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	r := runner.New(
		[]runner.Service{busService, scheduler},
		runner.WithLogger(logger),
		runner.WithShutdownTimeout(15*time.Second),
	)

	return r.Run(context.Background())
}

func registerCommands(registry *schema.Registry) error {
	defs := []schema.CommandDefinition{
		{
			ID:           "generate-report",
			Name:         "Generate Report",
			Description:  "Builds the daily activity report.",
			NameTemplate: "Generate {Kind} report",
			Parameters: []schema.Parameter{
				{ID: "Kind", Name: "Kind", Description: "Report kind to generate"},
			},
		},
		{
			ID:           "heartbeat",
			Name:         "Heartbeat",
			Description:  "Periodic liveness check across workers.",
			CronSchedule: "@every 1m",
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("register command %s: %w", def.ID, err)
		}
	}
	return nil
}

func registerHandlers(d *pipeline.Dispatcher, logger *slog.Logger) {
	d.RegisterHandler("generate-report", pipeline.HandlerFunc{
		HandlerName: "GenerateReportHandler",
		Fn: func(ctx context.Context, msg *pipeline.Message) error {
			logger.Info("generating report", slog.String("message_id", msg.ID.String()))
			return nil
		},
	})
	d.RegisterHandler("heartbeat", pipeline.HandlerFunc{
		HandlerName: "HeartbeatHandler",
		Fn: func(ctx context.Context, msg *pipeline.Message) error {
			return nil
		},
	})
}
