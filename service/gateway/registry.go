package gateway

import (
	"sync"

	"relaygate/logger"
)

// Registry maps user id -> set of live handles for this process. One user
// may hold any number of concurrent connections (multi-device).
//
// Locking: a single coarse RWMutex guards structural mutation of the map;
// transport writes never happen under it. Write serialization per handle
// is the connection's own guard (Conn.writeMu). Connect/disconnect races
// therefore cannot orphan a handle: membership and guard live on the same
// Conn value.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[*Conn]struct{}

	gwID string
}

func NewRegistry(gwID string) *Registry {
	return &Registry{
		users: make(map[int64]map[*Conn]struct{}),
		gwID:  gwID,
	}
}

func (r *Registry) GatewayID() string { return r.gwID }

// Connect registers the handle under its user. Idempotent per handle and
// never rejects on existing connections.
func (r *Registry) Connect(userID int64, c *Conn) {
	if c == nil || userID <= 0 {
		return
	}
	c.markConnected()
	r.mu.Lock()
	set := r.users[userID]
	if set == nil {
		set = make(map[*Conn]struct{})
		r.users[userID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()
}

// Disconnect removes the handle and closes its transport. Safe to call
// repeatedly and from racing paths (read-loop exit vs. send-failure
// cleanup); only the first effective call reports true.
func (r *Registry) Disconnect(userID int64, c *Conn) bool {
	if c == nil {
		return false
	}
	removed := false
	r.mu.Lock()
	if set := r.users[userID]; set != nil {
		if _, ok := set[c]; ok {
			delete(set, c)
			removed = true
		}
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
	r.mu.Unlock()

	if c.markDisconnected() {
		closeQuiet(c.ws)
	}
	return removed
}

// SendPersonal delivers to every handle the user currently holds. A
// failure on one device never blocks the others; the failed handle is
// disconnected as a side effect.
func (r *Registry) SendPersonal(userID int64, data []byte) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		r.deliver(c, data)
	}
}

// Broadcast delivers to every handle of every user, with the same
// per-handle failure isolation as SendPersonal.
func (r *Registry) Broadcast(data []byte) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.users))
	for _, set := range r.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		r.deliver(c, data)
	}
}

func (r *Registry) deliver(c *Conn, data []byte) {
	if err := c.Send(data); err != nil {
		logger.Debugf("[registry] drop stale handle user=%d: %v", c.UserID, err)
		r.Disconnect(c.UserID, c)
	}
}

// CountUser returns how many handles the user currently holds.
func (r *Registry) CountUser(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Size returns the total number of registered handles.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.users {
		n += len(set)
	}
	return n
}

// Close disconnects everything; used on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Conn, 0)
	for _, set := range r.users {
		for c := range set {
			all = append(all, c)
		}
	}
	r.users = make(map[int64]map[*Conn]struct{})
	r.mu.Unlock()

	for _, c := range all {
		if c.markDisconnected() {
			closeQuiet(c.ws)
		}
	}
}
