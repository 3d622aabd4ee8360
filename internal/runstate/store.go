package runstate

import "sync"

// Store holds run state keyed by run ID. Each key has at most one writer
// (the run's orchestrator); reads may happen concurrently from any
// goroutine.
type Store interface {
	Put(runID string, state RunState)
	Get(runID string) (RunState, bool)
}

// MemoryStore is the in-process Store used by the daemon. States are stored
// by value so readers never observe a partially written update.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]RunState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]RunState)}
}

func (m *MemoryStore) Put(runID string, state RunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[runID] = state
}

func (m *MemoryStore) Get(runID string) (RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[runID]
	return state, ok
}

// Snapshot returns a copy of every known state. Used by status listings.
func (m *MemoryStore) Snapshot() []RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunState, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, state)
	}
	return out
}
