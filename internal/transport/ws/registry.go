package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry maps an authenticated user to their live connections. A user may
// hold several at once (multi-device). Reads return snapshots so callers
// never hold the registry lock across an I/O-bound broadcast.
//
// There are no hidden statics: one Registry is created at process start and
// injected into everything that needs it.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Client
	byUser map[uuid.UUID]map[uuid.UUID]*Client

	onConnect    []func(userID uuid.UUID)
	onDisconnect []func(userID uuid.UUID, remaining int)
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Client),
		byUser: make(map[uuid.UUID]map[uuid.UUID]*Client),
	}
}

// OnConnect registers a hook fired after every register. Wire hooks before
// serving traffic; registration is not synchronized.
func (r *Registry) OnConnect(fn func(userID uuid.UUID)) {
	r.onConnect = append(r.onConnect, fn)
}

// OnDisconnect registers a hook fired after every unregister with the number
// of connections the user still holds.
func (r *Registry) OnDisconnect(fn func(userID uuid.UUID, remaining int)) {
	r.onDisconnect = append(r.onDisconnect, fn)
}

// Register adds a connection and fires the connect hooks outside the lock.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.conns[c.id] = c
	userConns, ok := r.byUser[c.userID]
	if !ok {
		userConns = make(map[uuid.UUID]*Client)
		r.byUser[c.userID] = userConns
	}
	userConns[c.id] = c
	total := len(r.conns)
	r.mu.Unlock()

	log.Info().Stringer("user", c.userID).Stringer("conn", c.id).
		Int("total", total).Msg("ws: connected")

	for _, fn := range r.onConnect {
		fn(c.userID)
	}
}

// Unregister removes a connection. Removing an unknown id is a no-op.
func (r *Registry) Unregister(connID uuid.UUID) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	userConns := r.byUser[c.userID]
	delete(userConns, connID)
	remaining := len(userConns)
	if remaining == 0 {
		delete(r.byUser, c.userID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	c.close()

	log.Info().Stringer("user", c.userID).Stringer("conn", connID).
		Int("total", total).Msg("ws: disconnected")

	for _, fn := range r.onDisconnect {
		fn(c.userID, remaining)
	}
}

// ConnectionsFor returns a snapshot of the user's live connections; an empty
// slice means offline.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// push delivers a marshaled event to every connection of one user.
func (r *Registry) push(userID uuid.UUID, data []byte) {
	for _, c := range r.ConnectionsFor(userID) {
		c.enqueue(data)
	}
}

// pushEvent marshals once and fans out.
func (r *Registry) pushEvent(userID uuid.UUID, eventType string, payload any) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("ws: marshal error")
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("ws: marshal error")
		return
	}
	r.push(userID, data)
}
