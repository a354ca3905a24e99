package tsproxy

import (
	"sort"

	"github.com/netshape/tsproxy/internal/shaping"
)

// Connection pairs the two halves of a proxied connection.
type Connection struct {
	ID          int64
	Client      *clientHandler
	Destination *destinationHandler
}

// Registry maps connection IDs to connections. IDs are allocated in
// increasing order and never reused. The zero value is invalid; use
// [NewRegistry].
type Registry struct {
	conns  map[int64]*Connection
	lastID int64
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[int64]*Connection),
		lastID: 0,
	}
}

// Add allocates the next ID and registers an empty connection for it.
func (r *Registry) Add() *Connection {
	r.lastID++
	conn := &Connection{ID: r.lastID}
	r.conns[conn.ID] = conn
	metricConnectionsActive.Inc()
	return conn
}

// Get returns the connection with the given ID or nil.
func (r *Registry) Get(id int64) *Connection {
	return r.conns[id]
}

// Detach removes the given side of a connection. It returns true when
// the other side is still attached; otherwise the connection is removed.
func (r *Registry) Detach(id int64, side shaping.Side) bool {
	conn := r.conns[id]
	if conn == nil {
		return false
	}
	switch side {
	case shaping.SideClient:
		conn.Client = nil
	case shaping.SideDestination:
		conn.Destination = nil
	}
	if conn.Client != nil || conn.Destination != nil {
		return true
	}
	delete(r.conns, id)
	metricConnectionsActive.Dec()
	return false
}

// Len returns the number of connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// IDs returns the IDs of the current connections in increasing order.
func (r *Registry) IDs() []int64 {
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
