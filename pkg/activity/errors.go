package activity

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCommand is returned when RecordCommandInitiated is called
	// twice for the same command ID.
	ErrDuplicateCommand = errors.New("command already initiated")

	// ErrUnknownCommand is returned when an event references a command ID
	// that was never tracked.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownMessage is returned when a handler or saga event references
	// a message ID that was never recorded as sent.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrUnknownHandler is returned when a handler-finished event cannot be
	// matched to a previously started handler of a tracked command.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrUnknownCommandType is returned when a command references a type ID
	// that is not registered.
	ErrUnknownCommandType = errors.New("unknown command type")

	// ErrInvalidProgress is returned when a reported progress value is
	// outside the range [0, 100].
	ErrInvalidProgress = errors.New("progress out of range")
)

// DuplicateCommandError reports an attempt to re-initiate an existing command.
type DuplicateCommandError struct {
	CommandID CommandID
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command %s already initiated", e.CommandID)
}

func (e *DuplicateCommandError) Is(target error) bool {
	return target == ErrDuplicateCommand
}

// UnknownMessageError reports an event referencing an unrecorded message.
type UnknownMessageError struct {
	MessageID MessageID
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("message %s was never recorded as sent", e.MessageID)
}

func (e *UnknownMessageError) Is(target error) bool {
	return target == ErrUnknownMessage
}

// UnknownHandlerError reports a handler-finished event with no matching
// started handler on the tracked command.
type UnknownHandlerError struct {
	CommandID CommandID
	MessageID MessageID
	Handler   string
}

func (e *UnknownHandlerError) Error() string {
	return fmt.Sprintf("no started handler %q for message %s on command %s",
		e.Handler, e.MessageID, e.CommandID)
}

func (e *UnknownHandlerError) Is(target error) bool {
	return target == ErrUnknownHandler
}

// UnknownCommandError reports an event referencing an untracked command.
type UnknownCommandError struct {
	CommandID CommandID
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("command %s is not tracked", e.CommandID)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// InvalidProgressError reports a progress value outside [0, 100].
type InvalidProgressError struct {
	Progress float64
}

func (e *InvalidProgressError) Error() string {
	return fmt.Sprintf("progress %v out of range [0, 100]", e.Progress)
}

func (e *InvalidProgressError) Is(target error) bool {
	return target == ErrInvalidProgress
}
