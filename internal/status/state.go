// Package status records what an operator should see about the game mode:
// whether it is starting, connected, idle, disconnected or failed. The state
// lives in a Store so several hosts can publish to one Redis.
package status

import (
	"sync/atomic"
	"time"
)

// Phase names the coarse lifecycle of the game mode as shown to operators.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
	PhaseError        Phase = "error"
)

// State is the persisted indicator state.
type State struct {
	Phase       Phase     `json:"phase"`
	Idle        bool      `json:"idle"`
	LastError   string    `json:"last_error,omitempty"`
	Disconnects int       `json:"disconnects"`
	Errors      int       `json:"errors"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists State.
type Store interface {
	Load() State
	Store(State)
}

type memoryStore struct{ v atomic.Value }

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	ms := &memoryStore{}
	ms.v.Store(State{Phase: PhaseStarting, Idle: true})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Phase: PhaseStarting, Idle: true}
}

func (m *memoryStore) Store(s State) { m.v.Store(s) }
