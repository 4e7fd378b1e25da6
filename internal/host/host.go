// Package host is a headless game server: it owns the single scripting
// goroutine that drives the bridge with ticks, script callbacks and rcon
// commands.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
	"github.com/gaspardpetit/gmbridge/internal/logx"
)

// DefaultTickInterval matches a 200 Hz server loop.
const DefaultTickInterval = 5 * time.Millisecond

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("host: stopped")

// Engine is the part of the bridge the host loop drives.
type Engine interface {
	Tick(ctx context.Context)
	PublicCall(ctx context.Context, name string, args []any) (int32, bool)
}

// request is a unit of work executed on the loop goroutine.
type request struct {
	fn   func(ctx context.Context, eng Engine) any
	done chan result
}

type result struct {
	value any
	err   error
}

// Host serializes all bridge access through one goroutine, the way a game
// server runs its scripts on the main thread.
type Host struct {
	tick     time.Duration
	requests chan request
	rcon     chan string
	quit     chan struct{}
	log      zerolog.Logger
}

// New returns a Host ticking every tick, or DefaultTickInterval.
func New(tick time.Duration) *Host {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Host{
		tick:     tick,
		requests: make(chan request, 64),
		rcon:     make(chan string, 16),
		quit:     make(chan struct{}),
		log:      logx.Component("host"),
	}
}

// SendRconCommand queues cmd for the next loop iteration. It never blocks,
// so the bridge may call it while a round trip is in flight.
func (h *Host) SendRconCommand(cmd string) {
	select {
	case h.rcon <- cmd:
	default:
		h.log.Warn().Str("command", cmd).Msg("rcon queue full, command dropped")
	}
}

// Run fires OnGameModeInit, then ticks eng until ctx is done and fires
// OnGameModeExit on the way out.
func (h *Host) Run(ctx context.Context, eng Engine) error {
	defer close(h.quit)
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	eng.PublicCall(ctx, bridge.OnGameModeInit, nil)
	h.log.Info().Dur("tick", h.tick).Msg("host loop started")
	for {
		select {
		case <-ctx.Done():
			eng.PublicCall(context.WithoutCancel(ctx), bridge.OnGameModeExit, nil)
			h.log.Info().Msg("host loop stopped")
			return nil
		case cmd := <-h.rcon:
			h.exec(ctx, eng, cmd)
		case req := <-h.requests:
			req.done <- h.execute(ctx, eng, req.fn)
		case <-ticker.C:
			eng.Tick(ctx)
		}
	}
}

func (h *Host) execute(ctx context.Context, eng Engine, fn func(context.Context, Engine) any) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("host: %v", r)
			h.log.Error().Interface("panic", r).Msg("host request panicked")
		}
	}()
	res.value = fn(ctx, eng)
	return res
}

func (h *Host) exec(ctx context.Context, eng Engine, cmd string) {
	switch strings.TrimSpace(cmd) {
	case "gmx":
		h.log.Info().Msg("restarting game mode")
		eng.PublicCall(ctx, bridge.OnGameModeExit, nil)
		eng.PublicCall(ctx, bridge.OnGameModeInit, nil)
	default:
		h.log.Warn().Str("command", cmd).Msg("unknown rcon command")
	}
}

// Do runs fn on the loop goroutine and waits for it. fn must not call Do.
func (h *Host) Do(ctx context.Context, fn func(ctx context.Context, eng Engine) any) (any, error) {
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case h.requests <- req:
	case <-h.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-h.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call fires a script callback on the loop goroutine.
func (h *Host) Call(ctx context.Context, name string, args ...any) (int32, bool, error) {
	type ret struct {
		v  int32
		ok bool
	}
	v, err := h.Do(ctx, func(ctx context.Context, eng Engine) any {
		r, ok := eng.PublicCall(ctx, name, args)
		return ret{r, ok}
	})
	if err != nil {
		return 0, false, err
	}
	r := v.(ret)
	return r.v, r.ok, nil
}
