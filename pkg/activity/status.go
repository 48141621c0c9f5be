package activity

import "time"

// Status is the externally visible processing state of a command.
type Status int

const (
	StatusSent Status = iota
	StatusProcessing
	StatusCompleted
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is Completed or Errored.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// CommandStatus is the derived, read-only projection of a command's state.
// Instances are immutable snapshots; they are never mutated after creation.
type CommandStatus struct {
	CommandID      CommandID
	Name           string
	CommandName    string
	CommandType    string
	InitiatingUser string
	StartTime      time.Time
	FinishTime     *time.Time
	Status         Status
	Progress       float64
	Attempt        int

	// LastError and StackTrace surface the single failing handler's error,
	// or a concatenated display string when several handlers failed.
	// HandlerErrors carries the structured per-handler list.
	LastError     string
	StackTrace    string
	HandlerErrors []HandlerError

	// Properties holds the human-readable command property values resolved
	// at initiation time, in support of keyword search.
	Properties map[string]string

	Handlers []HandlerSummary
	Sagas    []SagaSummary
}

// HandlerError is one failed handler's error in projection form.
type HandlerError struct {
	Handler    string
	Message    string
	StackTrace string
}

// HandlerSummary summarises one handler invocation, in recording order.
type HandlerSummary struct {
	Name      string
	Status    HandlerStatus
	StartTime time.Time
}

// SagaSummary summarises one linked saga, ordered ascending by start time.
type SagaSummary struct {
	Name      string
	SagaID    SagaID
	Status    SagaStatus
	StartTime time.Time
}

// StatusSink receives the persisted projection after each mutation. The
// bounded history store implements it.
type StatusSink interface {
	// Previous returns the last persisted projection for the command, if any.
	Previous(id CommandID) (*CommandStatus, bool)

	// Upsert stores the projection, evicting old history as needed.
	Upsert(cs *CommandStatus)
}

// Notifier receives best-effort broadcasts after each mutation that changes
// externally visible status. Implementations must not block the pipeline.
type Notifier interface {
	StatusChanged(cs *CommandStatus)
	Succeeded(cs *CommandStatus)
	Errored(cs *CommandStatus)
	ProgressChanged(cs *CommandStatus)
}
