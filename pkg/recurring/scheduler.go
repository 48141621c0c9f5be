// Package recurring submits registered recurring commands on their cron
// schedules, through the same submission path as operator-initiated
// commands.
package recurring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/schema"
)

// SchedulerUser is the initiating user recorded for scheduled submissions.
const SchedulerUser = "scheduler"

// Submitter dispatches a new command into the pipeline. The sagaflow
// module's submission entry point implements it.
type Submitter interface {
	Submit(ctx context.Context, commandType string, body any, initiatingUser string) (activity.CommandID, error)
}

// Scheduler runs the cron schedules of every recurring command definition
// in a registry. It implements the runner service lifecycle.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	logger    *slog.Logger
	entries   int
}

// NewScheduler builds a scheduler for every recurring definition in the
// registry. Invalid cron expressions fail construction. A nil logger means
// slog.Default().
func NewScheduler(registry *schema.Registry, submitter Submitter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:      cron.New(),
		submitter: submitter,
		logger:    logger,
	}

	for _, def := range registry.Definitions() {
		if !def.Recurring() {
			continue
		}
		commandType := def.ID
		_, err := s.cron.AddFunc(def.CronSchedule, func() {
			s.submit(commandType)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %q for command %s: %w", def.CronSchedule, def.ID, err)
		}
		s.entries++
		logger.Info("recurring command scheduled",
			slog.String("command_type", def.ID),
			slog.String("schedule", def.CronSchedule),
		)
	}

	return s, nil
}

// Entries returns the number of scheduled recurring commands.
func (s *Scheduler) Entries() int { return s.entries }

// Name implements runner.Service.
func (s *Scheduler) Name() string { return "recurring-commands" }

// Start implements runner.Service.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	return nil
}

// Stop implements runner.Service. Waits for any running submission.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) submit(commandType string) {
	ctx := context.Background()
	id, err := s.submitter.Submit(ctx, commandType, nil, SchedulerUser)
	if err != nil {
		s.logger.Error("scheduled command submission failed",
			slog.String("command_type", commandType),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("scheduled command submitted",
		slog.String("command_type", commandType),
		slog.String("command_id", id.String()),
	)
}
