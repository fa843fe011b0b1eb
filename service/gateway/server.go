package gateway

import (
	"context"
	"strconv"
	"strings"
	"time"

	"relaygate/global"
	"relaygate/logger"
	"relaygate/model"
)

// Publisher is the outbound side of the pub/sub bridge.
type Publisher interface {
	Publish(channel string, ev model.Event) error
}

// PresenceStore mirrors online state out of process (redis). Optional.
type PresenceStore interface {
	Online(ctx context.Context, userID int64) error
	Offline(ctx context.Context, userID int64) error
}

// DefaultChannel carries client-originated traffic on the bus.
const DefaultChannel = "global"

// Server hosts the socket sessions and routes events between the registry
// and the broadcast bus.
type Server struct {
	reg      *Registry
	bus      Publisher
	presence PresenceStore

	jwtSecret      []byte
	internalSecret string

	now func() time.Time
}

func NewServer(reg *Registry, bus Publisher, presence PresenceStore, cfg *global.Config) *Server {
	return &Server{
		reg:            reg,
		bus:            bus,
		presence:       presence,
		jwtSecret:      cfg.JWTSecret,
		internalSecret: cfg.InternalSecret,
		now:            time.Now,
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// route is the single egress path for relayable events: stamp with the
// server clock, publish on the bus for the other gateway instances, and
// fan out to the local sockets.
func (s *Server) route(ev model.Event) {
	model.Stamp(ev, s.now())

	if err := s.bus.Publish(DefaultChannel, ev); err != nil {
		logger.Warnf("[gateway] bus publish failed kind=%s: %v", ev.Kind(), err)
	}

	data, err := model.Encode(ev)
	if err != nil {
		logger.Errorf("[gateway] encode failed kind=%s: %v", ev.Kind(), err)
		return
	}
	s.reg.Broadcast(data)
}

// DeliverFromBus feeds an event received on the broadcast bus into the
// local registry. Channels of the form users.<id> address one user; every
// other channel fans out to all sockets.
func (s *Server) DeliverFromBus(channel string, ev model.Event) {
	data, err := model.Encode(ev)
	if err != nil {
		logger.Errorf("[gateway] encode from bus failed kind=%s: %v", ev.Kind(), err)
		return
	}
	if uid, ok := userChannel(channel); ok {
		s.reg.SendPersonal(uid, data)
		return
	}
	s.reg.Broadcast(data)
}

func userChannel(channel string) (int64, bool) {
	rest, ok := strings.CutPrefix(channel, "users.")
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}

// ackTo answers exactly one client; failures here take the normal
// stale-handle path on the next delivery attempt.
func (s *Server) ackTo(c *Conn, message string) {
	data, err := model.Encode(model.NewAck(message))
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		logger.Debugf("[gateway] ack send failed user=%d: %v", c.UserID, err)
	}
}
