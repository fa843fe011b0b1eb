package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"relaygate/logger"
	"relaygate/model"
	"relaygate/tools/errs"
	"relaygate/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Close codes surfaced to clients. Everything else they see is an ack.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

const maxFrameSize = 1 << 20 // 1MB

const pingInterval = 30 * time.Second

// HandleWS runs one socket session: authenticate, register, relay frames
// until the transport drops, then clean up. The session goroutine owns its
// Conn for the whole lifetime and is the only place the offline presence
// broadcast is emitted.
func (s *Server) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		// No credential at all: refuse the upgrade outright.
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	userID, err := security.Verify(s.jwtSecret, token)
	if err != nil {
		code := CloseForbidden
		reason := "forbidden"
		if errs.IsAuthError(err) {
			code = CloseUnauthorized
			reason = "unauthorized"
		}
		logger.Infof("[ws] auth rejected: %v", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(writeWait))
		closeQuiet(ws)
		return
	}

	conn := newConn(userID, ws)
	s.reg.Connect(userID, conn)
	defer s.teardown(conn)

	// Keepalive pings surface dead transports to the read loop.
	// WriteControl is safe alongside the data writers.
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if perr := s.presence.Online(ctx, userID); perr != nil {
			logger.Warnf("[ws] presence online failed user=%d: %v", userID, perr)
		}
		cancel()
	}

	s.ackTo(conn, "connected")
	logger.Infof("[ws] session open user=%d", userID)

	for {
		mt, raw, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed user=%d", userID)
			} else {
				logger.Infof("[ws] read err user=%d: %v", userID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(conn, raw)
	}
}

// handleFrame processes one inbound frame. Validation failures answer the
// sender and nothing else; a bad frame is never fatal to the session.
func (s *Server) handleFrame(c *Conn, raw []byte) {
	ev, err := model.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrDecodeFailure):
			s.ackTo(c, "invalid-json")
		case errors.Is(err, errs.ErrUnknownEventType):
			s.ackTo(c, "ignored")
		default:
			s.ackTo(c, "invalid-event")
		}
		logger.Debugf("[ws] frame rejected user=%d: %v", c.UserID, err)
		return
	}

	// Client acks are connection-local signals, not relayable traffic.
	if ev.Kind() == model.KindAck {
		return
	}
	s.route(ev)
}

// teardown runs exactly once per session, on every exit path. The registry
// disconnect itself is idempotent against the send-failure cleanup racing
// us from another goroutine.
func (s *Server) teardown(c *Conn) {
	s.reg.Disconnect(c.UserID, c)

	if s.presence != nil && s.reg.CountUser(c.UserID) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.presence.Offline(ctx, c.UserID); err != nil {
			logger.Warnf("[ws] presence offline failed user=%d: %v", c.UserID, err)
		}
		cancel()
	}

	s.route(model.NewPresence(c.UserID, nil, model.StatusOffline))
	logger.Infof("[ws] session closed user=%d", c.UserID)
}
