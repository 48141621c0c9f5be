// Package notify fans command status updates out to registered observers,
// intended to be wired to a push-notification transport such as a socket
// hub.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sagaflow/sagaflow/pkg/activity"
)

// StatusHandler observes a command status update. A returned error is
// logged, never propagated back into the pipeline.
type StatusHandler func(cs *activity.CommandStatus) error

// Broadcaster implements activity.Notifier. Dispatch is best-effort: a
// failing or panicking observer is surfaced to the log and the remaining
// observers still run. No lock is held while observers execute.
type Broadcaster struct {
	logger *slog.Logger

	mu         sync.RWMutex
	onStatus   []StatusHandler
	onSuccess  []StatusHandler
	onError    []StatusHandler
	onProgress []StatusHandler
}

// NewBroadcaster creates a broadcaster. A nil logger means slog.Default().
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{logger: logger}
}

// OnStatusChanged registers an observer invoked after every mutation that
// changes a command's externally visible status.
func (b *Broadcaster) OnStatusChanged(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStatus = append(b.onStatus, h)
}

// OnSucceeded registers an observer invoked when a command transitions into
// Completed.
func (b *Broadcaster) OnSucceeded(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSuccess = append(b.onSuccess, h)
}

// OnErrored registers an observer invoked when a command transitions into
// Errored.
func (b *Broadcaster) OnErrored(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = append(b.onError, h)
}

// OnProgressChanged registers an observer invoked on explicit progress
// updates.
func (b *Broadcaster) OnProgressChanged(h StatusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onProgress = append(b.onProgress, h)
}

// StatusChanged implements activity.Notifier.
func (b *Broadcaster) StatusChanged(cs *activity.CommandStatus) {
	b.dispatch("status_changed", b.snapshot(&b.onStatus), cs)
}

// Succeeded implements activity.Notifier.
func (b *Broadcaster) Succeeded(cs *activity.CommandStatus) {
	b.dispatch("succeeded", b.snapshot(&b.onSuccess), cs)
}

// Errored implements activity.Notifier.
func (b *Broadcaster) Errored(cs *activity.CommandStatus) {
	b.dispatch("errored", b.snapshot(&b.onError), cs)
}

// ProgressChanged implements activity.Notifier.
func (b *Broadcaster) ProgressChanged(cs *activity.CommandStatus) {
	b.dispatch("progress_changed", b.snapshot(&b.onProgress), cs)
}

func (b *Broadcaster) snapshot(list *[]StatusHandler) []StatusHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StatusHandler, len(*list))
	copy(out, *list)
	return out
}

func (b *Broadcaster) dispatch(event string, handlers []StatusHandler, cs *activity.CommandStatus) {
	for _, h := range handlers {
		if err := b.safeInvoke(h, cs); err != nil {
			b.logger.Error("status observer failed",
				slog.String("event", event),
				slog.String("command_id", cs.CommandID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (b *Broadcaster) safeInvoke(h StatusHandler, cs *activity.CommandStatus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	return h(cs)
}
