// Package nats hosts an embedded NATS server so the pipeline can run
// without an external broker, in tests and in single-process deployments.
package nats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const readyTimeout = 5 * time.Second

// EmbeddedServer wraps an in-process NATS server.
type EmbeddedServer struct {
	server       *server.Server
	url          string
	logger       *slog.Logger
	shutdownOnce sync.Once
}

// StartEmbeddedServer starts an embedded NATS server on a random localhost
// port. A nil logger means slog.Default().
func StartEmbeddedServer(logger *slog.Logger) (*EmbeddedServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // random port
	}
	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded server: %w", err)
	}

	go s.Start()
	if !s.ReadyForConnections(readyTimeout) {
		s.Shutdown()
		return nil, fmt.Errorf("embedded server not ready after %s", readyTimeout)
	}

	return &EmbeddedServer{
		server: s,
		url:    s.ClientURL(),
		logger: logger,
	}, nil
}

// URL returns the client connection URL.
func (e *EmbeddedServer) URL() string { return e.url }

// Connect returns a client connection to the embedded server.
func (e *EmbeddedServer) Connect() (*nats.Conn, error) {
	return nats.Connect(e.url)
}

// Shutdown stops the server. Safe to call multiple times; waits up to five
// seconds for a clean stop.
func (e *EmbeddedServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(readyTimeout):
			e.logger.Warn("embedded NATS server shutdown timed out",
				slog.Duration("timeout", readyTimeout))
		}
	})
}
