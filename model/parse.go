package model

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"relaygate/tools/errs"
)

type envelope struct {
	Type string `json:"type"`
}

// Parse validates one inbound frame: structural JSON decode, discriminator
// match, then per-variant required-field checks. The three failures are
// distinct kinds so callers can answer each one differently.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ErrDecodeFailure.WithDetail(err.Error())
	}

	ev, err := newVariant(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		// The envelope decoded, so this is a field-level type mismatch.
		return nil, errs.ErrMissingField.WithDetail(err.Error())
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// FromPayload builds an event from an already-decoded JSON object, the
// shape the internal publish endpoint and the legacy adapter hand over.
// Numeric fields arrive as float64 there; decode weakly.
func FromPayload(payload map[string]interface{}) (Event, error) {
	if payload == nil {
		return nil, errs.ErrDecodeFailure.WithDetail("nil payload")
	}
	kind, _ := payload["type"].(string)
	ev, err := newVariant(kind)
	if err != nil {
		return nil, err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           ev,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errs.ErrDecodeFailure.WithDetail(err.Error())
	}
	if err := dec.Decode(payload); err != nil {
		return nil, errs.ErrMissingField.WithDetail(err.Error())
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// KnownKind reports whether the discriminator names a variant at all,
// without decoding the rest of the payload.
func KnownKind(kind string) bool {
	_, err := newVariant(kind)
	return err == nil
}

func newVariant(kind string) (Event, error) {
	switch kind {
	case KindPresence:
		return &Presence{Type: KindPresence}, nil
	case KindMessage:
		return &Message{Type: KindMessage}, nil
	case KindAck:
		return &Ack{Type: KindAck}, nil
	default:
		return nil, errs.ErrUnknownEventType.WithDetail(kind)
	}
}
