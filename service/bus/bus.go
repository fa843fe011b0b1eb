// Package bus bridges the gateway onto the shared NATS broadcast bus.
// Each gateway instance publishes validated events and re-delivers what
// the other instances publish; this is the only coordination between
// processes, there is no shared memory.
package bus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"relaygate/logger"
	"relaygate/model"
)

const subjectPrefix = "rt"

// Envelope is the wire frame between gateway instances. Origin lets a
// gateway drop its own echo: locally originated events are fanned out at
// send time, not on the round trip.
type Envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   json.RawMessage `json:"event"`
}

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Config) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
}

// Handler receives every foreign event seen on the bus.
type Handler func(channel string, ev model.Event)

type Bridge struct {
	nc     *nats.Conn
	origin string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials the bus. origin is this gateway's instance id.
func Connect(cfg Config, origin string) (*Bridge, error) {
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connect bus")
	}
	return &Bridge{nc: nc, origin: origin}, nil
}

// Publish serializes the event and puts it on the logical channel. A
// non-encodable payload is reported without touching the bus.
func (b *Bridge) Publish(channel string, ev model.Event) error {
	raw, err := model.Encode(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Origin: b.origin, Channel: channel, Event: raw})
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := b.nc.Publish(subject(channel), data); err != nil {
		return errors.Wrap(err, "bus publish")
	}
	return nil
}

// SubscribeAll delivers every foreign bus event to h. Events run through
// the same validator as socket ingress; a bad frame on the bus is logged
// and dropped, never delivered.
func (b *Bridge) SubscribeAll(h Handler) error {
	sub, err := b.nc.Subscribe(subjectPrefix+".>", func(m *nats.Msg) {
		channel, ev, err := b.decode(m.Data)
		if err != nil {
			if err != errSkipOwn {
				logger.Warnf("[bus] drop frame subj=%s: %v", m.Subject, err)
			}
			return
		}
		h(channel, ev)
	})
	if err != nil {
		return errors.Wrap(err, "bus subscribe")
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

var errSkipOwn = errors.New("own origin")

func (b *Bridge) decode(data []byte) (string, model.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, errors.Wrap(err, "unmarshal envelope")
	}
	if env.Origin == b.origin {
		return "", nil, errSkipOwn
	}
	ev, err := model.Parse(env.Event)
	if err != nil {
		return "", nil, err
	}
	return env.Channel, ev, nil
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
	b.mu.Unlock()
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}

func subject(channel string) string {
	return subjectPrefix + "." + channel
}
