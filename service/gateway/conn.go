package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"relaygate/tools/errs"
)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnected
)

const writeWait = 5 * time.Second

// transport is the slice of *websocket.Conn the registry needs. Narrowed
// to an interface so registry tests can run against a fake socket.
type transport interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn is one live socket handle, owned by its session goroutine for the
// lifetime of the socket. The write mutex is the per-handle guard: the
// underlying websocket does not tolerate interleaved writers.
type Conn struct {
	UserID int64

	ws      transport
	writeMu sync.Mutex
	state   atomic.Int32
}

func newConn(userID int64, ws transport) *Conn {
	c := &Conn{UserID: userID, ws: ws}
	c.state.Store(int32(stateConnecting))
	return c
}

func (c *Conn) markConnected() {
	c.state.CompareAndSwap(int32(stateConnecting), int32(stateConnected))
}

// markDisconnected flips the handle to its terminal state. Returns true
// only for the caller that actually performed the transition.
func (c *Conn) markDisconnected() bool {
	prev := c.state.Swap(int32(stateDisconnected))
	return connState(prev) != stateDisconnected
}

func (c *Conn) connected() bool {
	return connState(c.state.Load()) == stateConnected
}

// Send writes one frame, serialized against every other writer targeting
// this handle. A handle that is no longer connected is treated as already
// failed: no transport call is made.
func (c *Conn) Send(data []byte) error {
	if !c.connected() {
		return errs.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errs.ErrSendFailed.WithDetail(err.Error())
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errs.ErrSendFailed.WithDetail(err.Error())
	}
	return nil
}

// closeWithCode delivers a close frame before dropping the socket, so the
// peer sees a documented close code instead of an abrupt reset.
func (c *Conn) closeWithCode(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	closeQuiet(c.ws)
}

func closeQuiet(ws transport) {
	if ws != nil {
		_ = ws.Close()
	}
}
