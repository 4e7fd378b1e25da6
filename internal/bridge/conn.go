package bridge

import (
	"github.com/google/uuid"

	"github.com/gaspardpetit/gmbridge/internal/metrics"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

// IsClientConnected reports whether a client is adopted and the channel is
// live.
func (b *Bridge) IsClientConnected() bool {
	return b.tr.Connected() && b.Status().ClientConnected
}

// Connect adopts a waiting client if none is connected. It returns false
// when no client could be reached.
func (b *Bridge) Connect() bool {
	if b.isClosed() {
		return false
	}
	// A dead channel the bridge still believes in stays "connected" so the
	// next receive can drain what the client sent before hanging up.
	if b.tr.Connected() || b.Status().ClientConnected {
		return true
	}
	if !b.tr.Ready() {
		if err := b.tr.Setup(); err != nil {
			return false
		}
	}
	if err := b.tr.Connect(); err != nil {
		return false
	}

	b.indicator.SetIdle(false)
	now := b.now()
	epoch := uuid.NewString()
	b.smu.Lock()
	reconnecting := b.status.ClientReconnecting
	b.status.connected()
	b.epoch = epoch
	b.lastInteraction = now
	b.smu.Unlock()
	b.log = b.base.With().Str("epoch", epoch).Logger()
	metrics.SetClientConnected(true)

	if reconnecting {
		b.log.Info().Msg("client reconnected")
	} else {
		b.log.Info().Msg("connected to client")
	}
	b.announce()
	return true
}

// announce sends the protocol and bridge versions and the host's working
// directory.
func (b *Bridge) announce() {
	cwd := b.cwd
	if limit := protocol.MaxFrameSize - 8; len(cwd) > limit {
		cwd = cwd[:limit]
	}
	p := protocol.NewBuilder(8 + len(cwd)).
		Uint32(protocol.ProtocolVersion).
		Uint32(b.version).
		Bytes([]byte(cwd)).
		Payload()
	b.send(protocol.OpAnnounce, p)
	b.log.Info().Uint32("protocol", protocol.ProtocolVersion).Uint32("version", b.version).Str("cwd", cwd).Msg("server announcement sent")
}

// Disconnect tears down the client connection. expected marks a teardown the
// client announced by reconnecting; registries survive it. Otherwise a client
// that announced its disconnect is dropped quietly and anything else is
// reported as an error with the given context. The transport is re-armed in
// every case.
func (b *Bridge) Disconnect(context string, expected bool) {
	st := b.Status()
	if !st.ClientConnected {
		return
	}

	var kind string
	switch {
	case expected:
		kind = "expected"
		b.log.Info().Msg("client disconnected")
		b.indicator.SignalDisconnect()
	case st.ClientDisconnecting:
		kind = "client"
		b.log.Info().Msg("client disconnected")
		b.indicator.SignalDisconnect()
		b.update((*Status).disconnected)
		b.natives.Clear()
		b.callbacks.Clear()
	default:
		kind = "unexpected"
		b.log.Error().Str("context", context).Msg("unexpected disconnect of client")
		b.indicator.SignalError(context)
		b.update((*Status).stopped)
		b.natives.Clear()
		b.callbacks.Clear()
	}

	b.tr.Disconnect()
	if !b.isClosed() {
		if err := b.tr.Setup(); err != nil {
			b.log.Warn().Err(err).Msg("transport setup failed")
		}
	}

	b.smu.Lock()
	b.status.lost()
	b.epoch = ""
	b.smu.Unlock()
	b.log = b.base
	metrics.SetClientConnected(false)
	metrics.RecordDisconnect(kind)
}

// Terminate drops the client as an unexpected disconnect.
func (b *Bridge) Terminate(context string) {
	b.Disconnect(context, false)
}

func (b *Bridge) send(op protocol.Opcode, payload []byte) {
	if err := b.tr.Send(op, payload); err != nil {
		b.log.Debug().Err(err).Str("op", op.String()).Msg("send failed")
		return
	}
	metrics.RecordCommandSent(op.String())
}
