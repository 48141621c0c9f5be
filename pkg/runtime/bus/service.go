// Package bus provides a runner.Service adapter around the NATS command
// bus. When no external NATS URL is configured it runs an embedded server
// in-process, which is also how tests use it.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	infranats "github.com/sagaflow/sagaflow/pkg/infrastructure/nats"
	"github.com/sagaflow/sagaflow/pkg/observability"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
	natsbus "github.com/sagaflow/sagaflow/pkg/pipeline/nats"
	"github.com/sagaflow/sagaflow/pkg/sagaflow"
)

// Service wraps an optional embedded NATS server and the command bus as a
// runner.Service. On Start it attaches the bus to the module as its
// publisher and subscribes the dispatcher's subjects.
type Service struct {
	config     natsbus.Config
	module     *sagaflow.Module
	dispatcher *pipeline.Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics

	server *infranats.EmbeddedServer
	bus    *natsbus.Bus
}

// Option configures the bus service.
type Option func(*Service)

// WithConfig sets the NATS configuration. An empty URL means an embedded
// server is started and its URL used instead.
func WithConfig(config natsbus.Config) Option {
	return func(s *Service) { s.config = config }
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics wires bus traffic counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a bus service that publishes for module and delivers
// incoming messages to dispatcher.
func New(module *sagaflow.Module, dispatcher *pipeline.Dispatcher, opts ...Option) *Service {
	s := &Service{
		config:     natsbus.DefaultConfig(),
		module:     module,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the service name for logging.
func (s *Service) Name() string {
	return "command-bus"
}

// Start brings up the embedded server when needed, connects the bus, and
// subscribes every registered subject.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting command bus service")

	if s.config.URL == "" {
		s.logger.Debug("starting embedded NATS server")
		srv, err := infranats.StartEmbeddedServer(s.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		s.server = srv
		s.config.URL = srv.URL()
	}

	busOpts := []natsbus.Option{natsbus.WithLogger(s.logger)}
	if s.metrics != nil {
		busOpts = append(busOpts, natsbus.WithMetrics(s.metrics))
	}

	b, err := natsbus.NewBus(s.config, s.module.Recorder(), busOpts...)
	if err != nil {
		if s.server != nil {
			s.server.Shutdown()
		}
		return fmt.Errorf("failed to connect command bus: %w", err)
	}
	s.bus = b
	s.module.SetPublisher(b)

	if err := b.SubscribeAll(ctx, s.dispatcher); err != nil {
		b.Close()
		if s.server != nil {
			s.server.Shutdown()
		}
		return fmt.Errorf("failed to subscribe command subjects: %w", err)
	}

	s.logger.Info("command bus service started",
		slog.String("url", s.config.URL),
		slog.Int("subjects", len(s.dispatcher.Subjects())))

	return nil
}

// Stop drains the bus connection and shuts down the embedded server.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping command bus service")

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("error closing command bus", slog.String("error", err.Error()))
		}
		// Give in-flight deliveries time to settle.
		time.Sleep(100 * time.Millisecond)
	}

	if s.server != nil {
		s.server.Shutdown()
	}

	s.logger.Info("command bus service stopped")
	return nil
}

// HealthCheck verifies the bus connection is responsive.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.bus == nil {
		return fmt.Errorf("command bus not started")
	}
	if err := s.bus.Flush(); err != nil {
		return fmt.Errorf("command bus not responsive: %w", err)
	}
	return nil
}

// Bus returns the connected bus. Only available after Start succeeds.
func (s *Service) Bus() *natsbus.Bus {
	return s.bus
}

// URL returns the NATS connection URL in use. Only available after Start
// succeeds.
func (s *Service) URL() string {
	return s.config.URL
}
