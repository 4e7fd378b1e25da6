// Package bridge is the host side of the game mode protocol. A Bridge owns
// one client connection and multiplexes host ticks, script callbacks and the
// client's own native calls over a single synchronous channel.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/transport"
)

// DefaultBridgeVersion is announced when Options.BridgeVersion is zero.
const DefaultBridgeVersion uint32 = 1

// ErrNoReply is reported to hooks when a round trip ended without a usable
// reply.
var ErrNoReply = errors.New("bridge: no response from client")

// Indicator is notified of connection transitions, e.g. to show an operator
// that the game mode is offline.
type Indicator interface {
	SignalStarting()
	SignalDisconnect()
	SignalError(context string)
	SetIdle(idle bool)
}

// Natives resolves and invokes host functions on behalf of the client.
type Natives interface {
	// Handle resolves name, returning -1 when it is unknown.
	Handle(name string) int32
	// Name returns the native behind handle, or "" when unknown.
	Name(handle int32) string
	// Invoke runs the native encoded in payload and returns the encoded result.
	Invoke(ctx context.Context, payload []byte) ([]byte, error)
	// Clear forgets every resolved handle.
	Clear()
}

// Callbacks knows which script callbacks the client subscribed to and how to
// serialize them.
type Callbacks interface {
	// Register records a subscription sent by the client.
	Register(buf []byte) error
	// Fill serializes a callback invocation. It reports false when the
	// callback should not be forwarded; force forwards unregistered callbacks.
	Fill(name string, args []any, force bool) ([]byte, bool)
	// Clear drops every subscription.
	Clear()
}

// Host is the game server embedding the bridge.
type Host interface {
	SendRconCommand(cmd string)
}

// Options configures a Bridge. Transport, Natives and Callbacks are required.
type Options struct {
	Transport transport.Transport
	Natives   Natives
	Callbacks Callbacks
	Indicator Indicator
	Host      Host
	Hook      Hook

	Logger *zerolog.Logger

	// DebugCheck enables the debugger pause heuristic.
	DebugCheck bool
	Pause      PauseConfig
	// PollWait is how long one receive waits while a reply is outstanding.
	PollWait time.Duration

	WorkingDir    string
	BridgeVersion uint32

	// Now replaces the wall clock, for tests.
	Now func() time.Time
}

// Bridge is the protocol engine. All exported methods are meant to be called
// from the host's scripting goroutine; Snapshot may be called from anywhere.
type Bridge struct {
	tr        transport.Transport
	natives   Natives
	callbacks Callbacks
	indicator Indicator
	host      Host
	hook      Hook

	base       zerolog.Logger
	log        zerolog.Logger
	debugCheck bool
	pause      PauseConfig
	pollWait   time.Duration
	cwd        string
	version    uint32
	now        func() time.Time

	// rt serializes round trips; see lock.
	rt sync.Mutex

	smu             sync.Mutex
	status          Status
	epoch           string
	lastInteraction time.Time
	lastTick        time.Time
	skippedTicks    int
	paused          bool
	closed          bool
}

// New builds a Bridge, signals "starting" and arms the transport.
func New(opts Options) *Bridge {
	b := &Bridge{
		tr:         opts.Transport,
		natives:    opts.Natives,
		callbacks:  opts.Callbacks,
		indicator:  opts.Indicator,
		host:       opts.Host,
		hook:       opts.Hook,
		debugCheck: opts.DebugCheck,
		pause:      opts.Pause.withDefaults(),
		pollWait:   opts.PollWait,
		cwd:        opts.WorkingDir,
		version:    opts.BridgeVersion,
		now:        opts.Now,
	}
	if b.indicator == nil {
		b.indicator = nopIndicator{}
	}
	if b.host == nil {
		b.host = nopHost{}
	}
	if b.hook == nil {
		b.hook = nopHook{}
	}
	if opts.Logger != nil {
		b.base = *opts.Logger
	} else {
		b.base = logx.Component("bridge")
	}
	b.log = b.base
	if b.now == nil {
		b.now = time.Now
	}
	if b.version == 0 {
		b.version = DefaultBridgeVersion
	}
	if b.cwd == "" {
		b.cwd = "."
	}
	b.lastInteraction = b.now()

	b.indicator.SignalStarting()
	if err := b.tr.Setup(); err != nil {
		b.log.Warn().Err(err).Msg("transport setup failed")
	}
	return b
}

// Snapshot is a consistent copy of the bridge state for status reporting.
type Snapshot struct {
	Status          Status    `json:"status"`
	Epoch           string    `json:"epoch,omitempty"`
	DebuggerPaused  bool      `json:"debugger_paused"`
	SkippedTicks    int       `json:"skipped_ticks"`
	LastInteraction time.Time `json:"last_interaction"`
	LastTick        time.Time `json:"last_tick"`
}

// Snapshot returns the current state.
func (b *Bridge) Snapshot() Snapshot {
	b.smu.Lock()
	defer b.smu.Unlock()
	return Snapshot{
		Status:          b.status,
		Epoch:           b.epoch,
		DebuggerPaused:  b.paused,
		SkippedTicks:    b.skippedTicks,
		LastInteraction: b.lastInteraction,
		LastTick:        b.lastTick,
	}
}

// Status returns the lifecycle flags.
func (b *Bridge) Status() Status {
	b.smu.Lock()
	defer b.smu.Unlock()
	return b.status
}

func (b *Bridge) update(fn func(s *Status)) {
	b.smu.Lock()
	fn(&b.status)
	b.smu.Unlock()
}

// Close drops the client and releases the transport. A closed bridge never
// re-arms the transport or adopts another client. Close may be called from
// any goroutine, e.g. to abort a round trip the client never answers.
func (b *Bridge) Close() error {
	b.smu.Lock()
	b.closed = true
	b.smu.Unlock()
	b.tr.Disconnect()
	return b.tr.Close()
}

func (b *Bridge) isClosed() bool {
	b.smu.Lock()
	defer b.smu.Unlock()
	return b.closed
}

type roundTripKey struct{}

// lock acquires the round-trip lock unless ctx shows the caller already
// holds it further up the same call stack, as happens when a native invoked
// by the client raises a callback. The returned context carries that mark
// and must be passed to everything running under the lock.
func (b *Bridge) lock(ctx context.Context) (context.Context, func()) {
	if owner, _ := ctx.Value(roundTripKey{}).(*Bridge); owner == b {
		return ctx, func() {}
	}
	b.rt.Lock()
	return context.WithValue(ctx, roundTripKey{}, b), b.rt.Unlock
}

type nopIndicator struct{}

func (nopIndicator) SignalStarting()    {}
func (nopIndicator) SignalDisconnect()  {}
func (nopIndicator) SignalError(string) {}
func (nopIndicator) SetIdle(bool)       {}

type nopHost struct{}

func (nopHost) SendRconCommand(string) {}
