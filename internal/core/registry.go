package core

import "sync"

// Registry tracks which connections are attached to each room on this
// process. It owns no network or backplane state and never closes a
// connection; it only adds and removes entries.
//
// Synchronization is per room: the registry-level lock guards only the
// room map itself, so fanout in one room never contends with joins or
// leaves in another.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomSet
}

type roomSet struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	purged bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*roomSet)}
}

// Add attaches conn to room. Adding a connection already present is a no-op.
func (r *Registry) Add(room string, conn Conn) {
	for {
		rs := r.getOrCreate(room)
		rs.mu.Lock()
		if rs.purged {
			rs.mu.Unlock()
			continue
		}
		rs.conns[conn.ID()] = conn
		rs.mu.Unlock()
		return
	}
}

// Remove detaches conn from room. Removing a connection that is not
// present is a no-op, which guards against double-disconnect races.
// It reports whether the connection was present.
func (r *Registry) Remove(room string, conn Conn) bool {
	rs := r.get(room)
	if rs == nil {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.conns[conn.ID()]; !ok {
		return false
	}
	delete(rs.conns, conn.ID())
	return true
}

// Snapshot returns a point-in-time copy of the room's connection set.
// Iterating the result is never corrupted by concurrent joins or leaves.
func (r *Registry) Snapshot(room string) []Conn {
	rs := r.get(room)
	if rs == nil {
		return nil
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	conns := make([]Conn, 0, len(rs.conns))
	for _, c := range rs.conns {
		conns = append(conns, c)
	}
	return conns
}

// Contains reports whether conn is currently attached to room.
func (r *Registry) Contains(room string, conn Conn) bool {
	rs := r.get(room)
	if rs == nil {
		return false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.conns[conn.ID()]
	return ok
}

// IsEmpty reports whether room has no locally attached connections.
func (r *Registry) IsEmpty(room string) bool {
	rs := r.get(room)
	if rs == nil {
		return true
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.conns) == 0
}

// Purge drops the room's entry if it is empty, releasing its memory.
// A non-empty room is left untouched.
func (r *Registry) Purge(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rooms[room]
	if !ok {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.conns) == 0 {
		rs.purged = true
		delete(r.rooms, room)
	}
}

func (r *Registry) get(room string) *roomSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[room]
}

func (r *Registry) getOrCreate(room string) *roomSet {
	r.mu.RLock()
	rs, ok := r.rooms[room]
	r.mu.RUnlock()
	if ok {
		return rs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.rooms[room]; ok {
		return rs
	}
	rs = &roomSet{conns: make(map[string]Conn)}
	r.rooms[room] = rs
	return rs
}
