package activity

import (
	"sync"
	"time"
)

// HandlerStatus is the lifecycle state of a single handler invocation.
type HandlerStatus string

const (
	HandlerRunning  HandlerStatus = "running"
	HandlerComplete HandlerStatus = "complete"
	HandlerFailed   HandlerStatus = "failed"
)

// SagaStatus is the lifecycle state of a saga instance. Once any error is
// recorded the status degrades to the WithErrors variant permanently.
type SagaStatus string

const (
	SagaRunning            SagaStatus = "running"
	SagaRunningWithErrors  SagaStatus = "running_with_errors"
	SagaComplete           SagaStatus = "complete"
	SagaCompleteWithErrors SagaStatus = "complete_with_errors"
)

// CommandState is the live tracking state for one initiated command.
// The Store exclusively owns instances; external components read them only
// through projections.
type CommandState struct {
	// Immutable after creation.
	id             CommandID
	commandType    string
	commandName    string
	summary        string
	body           any
	initiatingUser string
	startTime      time.Time
	properties     map[string]string
	seq            uint64

	mu               sync.Mutex
	attempt          int
	explicitProgress *float64
	handlerStates    []*HandlerState
	sagaStates       map[SagaID]*SagaState
	terminal         Status
	terminalReached  bool
}

// ID returns the command's unique identifier.
func (c *CommandState) ID() CommandID { return c.id }

// CommandType returns the registered command type identifier.
func (c *CommandState) CommandType() string { return c.commandType }

// StartTime returns the immutable initiation time.
func (c *CommandState) StartTime() time.Time { return c.startTime }

// setExplicitProgress records progress reported by in-flight work. Once set
// it takes precedence over handler-derived progress.
func (c *CommandState) setExplicitProgress(p float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explicitProgress = &p
}

// appendHandler adds a new handler invocation record. The list is
// append-only for the lifetime of the command.
func (c *CommandState) appendHandler(h *HandlerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlerStates = append(c.handlerStates, h)
}

// finishHandler marks the first still-running handler state matching the
// message and handler type as terminal. Returns false when no matching
// started handler exists.
func (c *CommandState) finishHandler(messageID MessageID, handlerType string, completed time.Time, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handlerStates {
		if h.initiatingMessageID != messageID || h.handlerType != handlerType {
			continue
		}
		if !h.completionTime.IsZero() {
			continue
		}
		h.completionTime = completed
		h.err = err
		if err != nil {
			h.status = HandlerFailed
		} else {
			h.status = HandlerComplete
		}
		return true
	}
	return false
}

// linkSaga associates a saga with this command. Idempotent.
func (c *CommandState) linkSaga(s *SagaState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sagaStates[s.id]; !ok {
		c.sagaStates[s.id] = s
	}
}

// noteProjected latches a terminal projected status so a late handler start
// can never regress the public status to Sent or Processing.
func (c *CommandState) noteProjected(s Status) {
	if s != StatusCompleted && s != StatusErrored {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminal = s
	c.terminalReached = true
}

// MessageState records one message observed sent by the pipeline. Immutable
// after insertion.
type MessageState struct {
	messageID     MessageID
	commandID     CommandID
	hasCommand    bool
	correlationID string
	body          any
}

// MessageID returns the message's unique identifier.
func (m *MessageState) MessageID() MessageID { return m.messageID }

// CommandID returns the tracked command this message belongs to, if any.
// A message unrelated to any tracked command reports ok=false.
func (m *MessageState) CommandID() (CommandID, bool) {
	return m.commandID, m.hasCommand
}

// CorrelationID returns the correlation identifier, empty when the message
// carries none.
func (m *MessageState) CorrelationID() string { return m.correlationID }

// HandlerState records one handler invocation observed for a command's
// correlated messages. Mutable fields are guarded by the owning
// CommandState.
type HandlerState struct {
	initiatingMessageID MessageID
	handlerType         string
	startTime           time.Time

	status         HandlerStatus
	completionTime time.Time
	err            error
}

// SagaState records one saga instance, shared between every command that
// references it.
type SagaState struct {
	id        SagaID
	typeName  string
	startTime time.Time

	mu             sync.Mutex
	status         SagaStatus
	completionTime time.Time
	errors         []error
	messages       []*MessageState
}

// ID returns the saga's unique identifier.
func (s *SagaState) ID() SagaID { return s.id }

// stepStarted marks another step running and appends the triggering message.
func (s *SagaState) stepStarted(msg *MessageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SagaRunningWithErrors {
		s.status = SagaRunning
	}
	s.messages = append(s.messages, msg)
}

// stepFinished appends an optional error and recomputes the saga status.
// Errors are never un-recorded: a later successful step cannot clear the
// WithErrors variant. CompletionTime is set only when finished is true.
func (s *SagaState) stepFinished(err error, finished bool, completed time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors = append(s.errors, err)
	}
	switch {
	case finished && len(s.errors) == 0:
		s.status = SagaComplete
	case finished:
		s.status = SagaCompleteWithErrors
	case len(s.errors) == 0:
		s.status = SagaRunning
	default:
		s.status = SagaRunningWithErrors
	}
	if finished {
		s.completionTime = completed
	}
}

// sagaSnapshot is a point-in-time copy of a saga's mutable fields.
type sagaSnapshot struct {
	id             SagaID
	typeName       string
	startTime      time.Time
	status         SagaStatus
	completionTime time.Time
}

func (s *SagaState) snapshot() sagaSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sagaSnapshot{
		id:             s.id,
		typeName:       s.typeName,
		startTime:      s.startTime,
		status:         s.status,
		completionTime: s.completionTime,
	}
}
