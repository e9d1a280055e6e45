// Package registry tracks live relay connections, their resolved identity and
// the rooms each one has joined. It never performs I/O.
package registry

import (
	"errors"
	"sync"

	"github.com/samber/lo"
)

// ErrUnknownConnection is returned when an operation names a connection that
// was never registered or has already been removed.
var ErrUnknownConnection = errors.New("unknown connection")

// Sink is the outbound side of a connection. Deliver must not block.
type Sink interface {
	Deliver(frame []byte) error
}

// Connection is a read-only snapshot of one registered connection.
type Connection struct {
	ID       string
	Identity string
	Sink     Sink
}

// Authenticated reports whether the connection resolved an identity.
func (c Connection) Authenticated() bool {
	return c.Identity != ""
}

type entry struct {
	identity string
	sink     Sink
	rooms    map[string]struct{}
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	rooms map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection. Registering an existing id replaces its sink
// and keeps identity and rooms.
func (r *Registry) Register(connID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[connID]; ok {
		e.sink = sink
		return
	}
	r.conns[connID] = &entry{sink: sink, rooms: make(map[string]struct{})}
}

// SetIdentity records the connection's subject. The first non-empty write wins.
func (r *Registry) SetIdentity(connID, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if e.identity == "" {
		e.identity = subject
	}
	return nil
}

func (r *Registry) Lookup(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return Connection{ID: connID, Identity: e.identity, Sink: e.sink}, true
}

// RecordJoin adds the connection to room. Joining twice is a no-op.
func (r *Registry) RecordJoin(connID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	e.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
	return nil
}

func (r *Registry) Joined(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// Members returns every connection currently joined to room except exclude.
func (r *Registry) Members(room, exclude string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if id == exclude {
			continue
		}
		e := r.conns[id]
		out = append(out, Connection{ID: id, Identity: e.identity, Sink: e.sink})
	}
	return out
}

// Count returns the number of connections joined to room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms lists the rooms connID has joined.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return lo.Keys(e.rooms)
}

// RemoveConnection forgets connID and purges it from every room it joined.
// Rooms left empty are dropped. It returns the rooms the connection was in.
func (r *Registry) RemoveConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	left := lo.Keys(e.rooms)
	for _, room := range left {
		members := r.rooms[room]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return left
}
