package activity

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandID identifies a tracked command. IDs are 128-bit values, compared
// by value, and never reused.
type CommandID struct {
	value uuid.UUID
}

// NewCommandID generates a new random command ID.
func NewCommandID() CommandID {
	return CommandID{value: uuid.New()}
}

// ParseCommandID parses a command ID from its string form.
func ParseCommandID(s string) (CommandID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return CommandID{}, fmt.Errorf("parse command id %q: %w", s, err)
	}
	return CommandID{value: v}, nil
}

// IsZero reports whether the ID is the zero value.
func (id CommandID) IsZero() bool { return id.value == uuid.Nil }

func (id CommandID) String() string { return id.value.String() }

// MessageID identifies a message observed on the bus.
type MessageID struct {
	value uuid.UUID
}

// NewMessageID generates a new random message ID.
func NewMessageID() MessageID {
	return MessageID{value: uuid.New()}
}

// ParseMessageID parses a message ID from its string form.
func ParseMessageID(s string) (MessageID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, fmt.Errorf("parse message id %q: %w", s, err)
	}
	return MessageID{value: v}, nil
}

// IsZero reports whether the ID is the zero value.
func (id MessageID) IsZero() bool { return id.value == uuid.Nil }

func (id MessageID) String() string { return id.value.String() }

// SagaID identifies a saga instance, independent of which commands
// reference it.
type SagaID struct {
	value uuid.UUID
}

// NewSagaID generates a new random saga ID.
func NewSagaID() SagaID {
	return SagaID{value: uuid.New()}
}

// ParseSagaID parses a saga ID from its string form.
func ParseSagaID(s string) (SagaID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return SagaID{}, fmt.Errorf("parse saga id %q: %w", s, err)
	}
	return SagaID{value: v}, nil
}

// IsZero reports whether the ID is the zero value.
func (id SagaID) IsZero() bool { return id.value == uuid.Nil }

func (id SagaID) String() string { return id.value.String() }
