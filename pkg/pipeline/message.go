package pipeline

import "github.com/sagaflow/sagaflow/pkg/activity"

// Message is one in-flight pipeline message. Subject routes the message to
// the handlers and sagas registered for it; tracking metadata travels in
// Headers; Body is the opaque encoded payload.
type Message struct {
	ID      activity.MessageID
	Subject string
	Headers Headers
	Body    []byte
}

// NewMessage creates a message with a fresh ID and empty headers.
func NewMessage(subject string, body []byte) *Message {
	m := &Message{
		ID:      activity.NewMessageID(),
		Subject: subject,
		Headers: Headers{},
		Body:    body,
	}
	m.Headers[HeaderMessageID] = m.ID.String()
	return m
}
