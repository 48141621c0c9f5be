// Package pipeline defines the message-processing collaborators that drive
// the activity recorder: message headers that round-trip tracking metadata,
// and a dispatcher that records handler and saga lifecycle events around
// the actual processing work.
package pipeline

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sagaflow/sagaflow/pkg/activity"
)

// Header keys attached to each in-flight message as string key/value pairs.
const (
	HeaderMessageID      = "sf-message-id"
	HeaderCommandID      = "sf-command-id"
	HeaderCorrelationID  = "sf-correlation-id"
	HeaderCommandName    = "sf-command-name"
	HeaderInitiatingUser = "sf-initiating-user"
	HeaderCommandStart   = "sf-command-start"
	HeaderAttempt        = "sf-attempt"
)

// Headers carries tracking metadata with a message across the bus.
type Headers map[string]string

// MessageID returns the message identifier header.
func (h Headers) MessageID() (activity.MessageID, bool) {
	raw, ok := h[HeaderMessageID]
	if !ok {
		return activity.MessageID{}, false
	}
	id, err := activity.ParseMessageID(raw)
	if err != nil {
		return activity.MessageID{}, false
	}
	return id, true
}

// CommandID returns the tracked command this message belongs to. Not every
// message is a command: ok is false for uncorrelated messages.
func (h Headers) CommandID() (activity.CommandID, bool) {
	raw, ok := h[HeaderCommandID]
	if !ok {
		return activity.CommandID{}, false
	}
	id, err := activity.ParseCommandID(raw)
	if err != nil {
		return activity.CommandID{}, false
	}
	return id, true
}

// CorrelationID returns the correlation header, empty when absent.
func (h Headers) CorrelationID() string { return h[HeaderCorrelationID] }

// InitiatingUser returns the initiating user header, empty when absent.
func (h Headers) InitiatingUser() string { return h[HeaderInitiatingUser] }

// Attempt returns the delivery attempt counter, defaulting to 1.
func (h Headers) Attempt() int {
	n, err := strconv.Atoi(h[HeaderAttempt])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// StampCommand sets the command tracking headers on a first send, and bumps
// the attempt counter on a re-stamp of the same message.
func (h Headers) StampCommand(commandID activity.CommandID, commandName, initiatingUser string, start time.Time) {
	if _, stamped := h[HeaderCommandID]; stamped {
		h[HeaderAttempt] = strconv.Itoa(h.Attempt() + 1)
		return
	}
	h[HeaderCommandID] = commandID.String()
	h[HeaderCommandName] = commandName
	h[HeaderInitiatingUser] = initiatingUser
	h[HeaderCommandStart] = start.UTC().Format(time.RFC3339Nano)
	h[HeaderAttempt] = "1"
}

// NewCorrelationID generates a sortable correlation identifier.
func NewCorrelationID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
