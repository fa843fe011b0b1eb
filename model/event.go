package model

import (
	"encoding/json"
	"time"

	"relaygate/tools/errs"
)

// Event discriminators. Every wire payload carries one in its "type" field.
const (
	KindPresence = "presence"
	KindMessage  = "message"
	KindAck      = "ack"
)

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusTyping  = "typing"
)

// Event is the tagged union relayed between sockets and gateway instances.
// Concrete variants: *Presence, *Message, *Ack.
type Event interface {
	Kind() string
	validate() error
}

// Presence announces a user's availability, optionally scoped to a thread.
type Presence struct {
	Type      string  `json:"type"`
	UserID    int64   `json:"user_id"`
	ThreadID  *int64  `json:"thread_id"`
	Status    string  `json:"status"`
	Timestamp *string `json:"timestamp"`
}

func NewPresence(userID int64, threadID *int64, status string) *Presence {
	return &Presence{Type: KindPresence, UserID: userID, ThreadID: threadID, Status: status}
}

func (p *Presence) Kind() string { return KindPresence }

func (p *Presence) validate() error {
	if p.UserID <= 0 {
		return errs.ErrMissingField.WithDetail("presence.user_id")
	}
	switch p.Status {
	case StatusOnline, StatusOffline, StatusTyping:
	default:
		return errs.ErrMissingField.WithDetail("presence.status")
	}
	return nil
}

// Message is one chat message within a thread.
type Message struct {
	Type      string  `json:"type"`
	ThreadID  int64   `json:"thread_id"`
	MessageID int64   `json:"message_id"`
	SenderID  int64   `json:"sender_id"`
	Body      string  `json:"body"`
	CreatedAt *string `json:"created_at"`
}

func (m *Message) Kind() string { return KindMessage }

func (m *Message) validate() error {
	switch {
	case m.ThreadID <= 0:
		return errs.ErrMissingField.WithDetail("message.thread_id")
	case m.MessageID <= 0:
		return errs.ErrMissingField.WithDetail("message.message_id")
	case m.SenderID <= 0:
		return errs.ErrMissingField.WithDetail("message.sender_id")
	case m.Body == "":
		return errs.ErrMissingField.WithDetail("message.body")
	}
	return nil
}

// Ack is a server-to-client status signal (handshake result, frame
// rejection). Never relayed between users.
type Ack struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewAck(message string) *Ack {
	return &Ack{Type: KindAck, Message: message}
}

func (a *Ack) Kind() string { return KindAck }

func (a *Ack) validate() error {
	if a.Message == "" {
		return errs.ErrMissingField.WithDetail("ack.message")
	}
	return nil
}

// Encode serializes an event for the socket or the bus. A non-encodable
// payload is reported without attempting delivery.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.ErrEncodeFailure.WithDetail(err.Error())
	}
	return data, nil
}

// Stamp overwrites any client-supplied timestamp with the server clock.
// Acks carry no timestamp.
func Stamp(ev Event, now time.Time) {
	ts := now.UTC().Format(time.RFC3339)
	switch e := ev.(type) {
	case *Presence:
		e.Timestamp = &ts
	case *Message:
		e.CreatedAt = &ts
	}
}
