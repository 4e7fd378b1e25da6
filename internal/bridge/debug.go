package bridge

import (
	"time"

	"github.com/gaspardpetit/gmbridge/internal/metrics"
)

// Debugger pause defaults.
const (
	DefaultPauseTimeout      = 5 * time.Second
	DefaultKeepaliveInterval = 7 * time.Second
	DefaultKeepaliveMinSkip  = 50
)

// PauseConfig tunes the debugger pause heuristic. Zero fields take the
// defaults.
type PauseConfig struct {
	// Timeout is the client silence after which it is considered paused.
	Timeout time.Duration
	// KeepaliveInterval is the minimum time since the last sent tick before a
	// keepalive tick goes through while paused.
	KeepaliveInterval time.Duration
	// KeepaliveMinSkip is the number of suppressed ticks required before a
	// keepalive tick.
	KeepaliveMinSkip int
}

func (c PauseConfig) withDefaults() PauseConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultPauseTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.KeepaliveMinSkip <= 0 {
		c.KeepaliveMinSkip = DefaultKeepaliveMinSkip
	}
	return c
}

// IsDebugging guesses whether the client is halted in a debugger, judging
// only by how long it has been silent. isTick selects the tick path, which
// lets an occasional keepalive tick through while paused.
func (b *Bridge) IsDebugging(isTick bool) bool {
	if !b.debugCheck {
		return false
	}
	now := b.now()

	b.smu.Lock()
	paused := now.Sub(b.lastInteraction) >= b.pause.Timeout
	edge := paused != b.paused
	b.paused = paused
	keepalive := false
	if isTick {
		switch {
		case !paused:
			b.skippedTicks = 0
		case now.Sub(b.lastTick) >= b.pause.KeepaliveInterval && b.skippedTicks >= b.pause.KeepaliveMinSkip:
			b.skippedTicks = 0
			keepalive = true
		default:
			b.skippedTicks++
		}
	}
	b.smu.Unlock()

	if edge {
		if paused {
			b.log.Info().Msg("debugger pause detected")
		} else {
			b.log.Info().Msg("debugger resume detected")
		}
		metrics.SetDebuggerPaused(paused)
	}
	if keepalive {
		b.log.Debug().Msg("keepalive tick")
		metrics.RecordTick("keepalive")
		return false
	}
	return paused
}

// touch records that the client just talked to us.
func (b *Bridge) touch() {
	now := b.now()
	b.smu.Lock()
	b.lastInteraction = now
	b.smu.Unlock()
}

func (b *Bridge) stampTick() {
	now := b.now()
	b.smu.Lock()
	b.lastTick = now
	b.smu.Unlock()
}
