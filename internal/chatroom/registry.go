package chatroom

import (
	"sync"

	"github.com/chatcore/chatserver/internal/metrics"
)

// Registry is the named directory of rooms. It is coordinator-owned in
// practice (the coordinator is the only caller), but its methods are
// internally serialized so it is safe to use directly from tests without
// a coordinator in front of it.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	backlog int
}

// NewRegistry creates an empty registry. backlog is the per-room broadcast
// capacity applied to every room created through this registry.
func NewRegistry(backlog int) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		backlog: backlog,
	}
}

// Create inserts a new room named name. Returns false if a room with that
// name already exists; no existing room is ever replaced.
func (reg *Registry) Create(name string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.rooms[name]; ok {
		return existing, false
	}

	room := New(name, reg.backlog)
	reg.rooms[name] = room
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	return room, true
}

// Lookup returns the named room, if it exists.
func (reg *Registry) Lookup(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[name]
	return room, ok
}

// List returns the names of every room currently in the registry. Order is
// unspecified.
func (reg *Registry) List() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	return names
}
