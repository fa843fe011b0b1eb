package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"relaygate/tools/errs"
)

func TestParsePresence(t *testing.T) {
	raw := []byte(`{"type":"presence","user_id":7,"thread_id":3,"status":"typing","timestamp":null}`)
	ev, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	p, ok := ev.(*Presence)
	if !ok {
		t.Fatalf("expected *Presence, got %T", ev)
	}
	if p.UserID != 7 || p.Status != StatusTyping {
		t.Fatalf("unexpected presence: %+v", p)
	}
	if p.ThreadID == nil || *p.ThreadID != 3 {
		t.Fatalf("thread_id not decoded: %+v", p)
	}
}

func TestParseMessage(t *testing.T) {
	raw := []byte(`{"type":"message","thread_id":1,"message_id":2,"sender_id":3,"body":"hi","created_at":"2026-01-01T00:00:00Z"}`)
	ev, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	m, ok := ev.(*Message)
	if !ok {
		t.Fatalf("expected *Message, got %T", ev)
	}
	if m.Body != "hi" || m.SenderID != 3 {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":"presence"`))
	if !errors.Is(err, errs.ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
}

func TestParseUnknownDiscriminator(t *testing.T) {
	_, err := Parse([]byte(`{"type":"payment","amount":5}`))
	if !errors.Is(err, errs.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	cases := []string{
		`{"type":"presence","status":"online"}`,
		`{"type":"presence","user_id":7,"status":"away"}`,
		`{"type":"message","thread_id":1,"message_id":2,"sender_id":3}`,
		`{"type":"message","thread_id":1,"message_id":2,"body":"hi"}`,
		`{"type":"ack"}`,
	}
	for _, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, errs.ErrMissingField) {
			t.Fatalf("raw=%s expected ErrMissingField, got %v", raw, err)
		}
	}
}

func TestParseFieldTypeMismatch(t *testing.T) {
	_, err := Parse([]byte(`{"type":"message","thread_id":"abc","message_id":2,"sender_id":3,"body":"hi"}`))
	if !errors.Is(err, errs.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestFromPayloadWeakTypes(t *testing.T) {
	// The internal publish path decodes JSON numbers to float64 first.
	payload := map[string]interface{}{
		"type":       "message",
		"thread_id":  float64(1),
		"message_id": float64(2),
		"sender_id":  float64(3),
		"body":       "hello",
	}
	ev, err := FromPayload(payload)
	if err != nil {
		t.Fatalf("FromPayload failed: %v", err)
	}
	m := ev.(*Message)
	if m.ThreadID != 1 || m.MessageID != 2 || m.SenderID != 3 {
		t.Fatalf("weak decode wrong: %+v", m)
	}
}

func TestFromPayloadUnknownType(t *testing.T) {
	_, err := FromPayload(map[string]interface{}{"type": "webhook"})
	if !errors.Is(err, errs.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestStampOverwritesClientTimestamp(t *testing.T) {
	client := "1999-01-01T00:00:00Z"
	m := &Message{Type: KindMessage, ThreadID: 1, MessageID: 2, SenderID: 3, Body: "x", CreatedAt: &client}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	Stamp(m, now)
	if m.CreatedAt == nil || *m.CreatedAt != "2026-08-29T12:00:00Z" {
		t.Fatalf("created_at not overwritten: %v", m.CreatedAt)
	}

	p := NewPresence(7, nil, StatusOnline)
	Stamp(p, now)
	if p.Timestamp == nil || *p.Timestamp != "2026-08-29T12:00:00Z" {
		t.Fatalf("timestamp not stamped: %v", p.Timestamp)
	}
}

func TestEncodeWireShape(t *testing.T) {
	data, err := Encode(NewAck("connected"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "ack" || got["message"] != "connected" {
		t.Fatalf("unexpected wire shape: %v", got)
	}
}
