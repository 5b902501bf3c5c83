package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the threadsafe set of admitted connections.
// Admit and Remove take the write lock; iteration takes the read lock, so a
// fan-out never overlaps a membership change.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]Connection)}
}

// Admit adds c and returns the membership size after the change.
// Admitting an id twice keeps a single entry.
func (r *Registry) Admit(c Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	n := len(r.conns)
	log.Debug().Str("module", "core.registry").Str("conn", string(c.ID())).Int("count", n).Msg("admitted")
	return n
}

// Remove drops id and reports whether it was present. Removing an absent id
// is a no-op.
func (r *Registry) Remove(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	log.Debug().Str("module", "core.registry").Str("conn", string(id)).Int("count", len(r.conns)).Msg("removed")
	return true
}

func (r *Registry) Contains(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot copies the current membership.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// View calls fn with the membership while holding the read lock.
// fn must not call Admit or Remove.
func (r *Registry) View(fn func(members []Connection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.snapshotLocked())
}

func (r *Registry) snapshotLocked() []Connection {
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
