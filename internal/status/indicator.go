package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/gmbridge/internal/logx"
)

// Indicator turns bridge transitions into persisted State. It only writes
// to the Store when something visible changed, since SetIdle runs every tick.
type Indicator struct {
	mu    sync.Mutex
	store Store
	cur   State
	now   func() time.Time
	log   zerolog.Logger
}

// NewIndicator returns an Indicator publishing to store, or to a memory
// store when store is nil.
func NewIndicator(store Store) *Indicator {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Indicator{
		store: store,
		cur:   store.Load(),
		now:   time.Now,
		log:   logx.Component("status"),
	}
}

// State returns the last published state.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cur
}

func (i *Indicator) SignalStarting() {
	i.apply(func(s *State) {
		s.Phase = PhaseStarting
		s.Idle = true
	})
}

func (i *Indicator) SignalDisconnect() {
	i.apply(func(s *State) {
		s.Phase = PhaseDisconnected
		s.Idle = true
		s.Disconnects++
	})
}

func (i *Indicator) SignalError(context string) {
	i.log.Warn().Str("context", context).Msg("game mode error signalled")
	i.apply(func(s *State) {
		s.Phase = PhaseError
		s.Idle = true
		s.LastError = context
		s.Errors++
	})
}

// SetIdle marks whether the client is absent. A client that is no longer
// idle is connected.
func (i *Indicator) SetIdle(idle bool) {
	i.apply(func(s *State) {
		s.Idle = idle
		if !idle {
			s.Phase = PhaseConnected
		}
	})
}

func (i *Indicator) apply(fn func(s *State)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	next := i.cur
	fn(&next)
	next.UpdatedAt = i.cur.UpdatedAt
	if next == i.cur {
		return
	}
	next.UpdatedAt = i.now().UTC()
	i.cur = next
	i.store.Store(next)
}
