package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/metrics"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
	"github.com/gaspardpetit/gmbridge/internal/transport"
)

// Callback names with lifecycle meaning.
const (
	OnGameModeInit = "OnGameModeInit"
	OnGameModeExit = "OnGameModeExit"
)

// ReceiveOne polls the client once without waiting. The reply, if any,
// belongs to the caller.
func (b *Bridge) ReceiveOne(ctx context.Context) (ReceiveStatus, *Reply) {
	return b.receiveOne(ctx, 0)
}

func (b *Bridge) receiveOne(ctx context.Context, wait time.Duration) (ReceiveStatus, *Reply) {
	if !b.Connect() {
		return ConnDead, nil
	}
	cmd, err := b.tr.Receive(wait)
	switch {
	case errors.Is(err, transport.ErrNoCommand):
		return NoCommand, nil
	case err != nil:
		b.Disconnect(fmt.Sprintf("connection lost: %v", err), false)
		return ConnDead, nil
	}
	b.touch()
	metrics.RecordCommandReceived(cmd.Op.String())
	return b.dispatch(ctx, cmd)
}

// ReceiveUntilUnhandled services client commands until one is unclaimed,
// which is returned as the reply. It reports false when the channel died
// first. Nested requests from the client run inline while waiting.
func (b *Bridge) ReceiveUntilUnhandled(ctx context.Context) (*Reply, bool) {
	for {
		stat, reply := b.receiveOne(ctx, b.pollWait)
		switch stat {
		case Unhandled:
			return reply, true
		case ConnDead:
			return nil, false
		}
	}
}

// PublicCall offers a script callback to the client and waits for its
// answer. It returns the client's return value and whether one was given.
// Calls the client cannot receive yet return immediately.
func (b *Bridge) PublicCall(ctx context.Context, name string, args []any) (int32, bool) {
	isInit := name == OnGameModeInit
	switch {
	case isInit:
		b.update(func(s *Status) { s.serverInit(true) })
	case name == OnGameModeExit:
		b.update(func(s *Status) { s.serverInit(false) })
	}

	if !b.IsClientConnected() || !b.Status().canCommunicate() {
		return 0, false
	}
	b.indicator.SetIdle(false)

	if isInit {
		b.update((*Status).initReceived)
	} else if !b.Status().ClientReceivedInit {
		return 0, false
	}

	if b.IsDebugging(false) {
		return 0, false
	}

	buf, ok := b.callbacks.Fill(name, args, isInit)
	if !ok {
		return 0, false
	}

	ctx, unlock := b.lock(ctx)
	defer unlock()

	info := CallInfo{Kind: CallPublic, Name: name, Epoch: b.Snapshot().Epoch}
	ctx, token := b.hook.OnCallStart(ctx, info)
	start := b.now()
	b.send(protocol.OpPublicCall, buf)
	reply, ok := b.ReceiveUntilUnhandled(ctx)
	defer reply.Release()

	if !ok || reply.Len() == 0 {
		b.log.Error().Str("callback", name).Msg("received no response to callback")
		metrics.RecordPublicCall(false, b.now().Sub(start))
		b.hook.OnCallEnd(ctx, token, info, ErrNoReply)
		return 0, false
	}
	metrics.RecordPublicCall(true, b.now().Sub(start))
	b.hook.OnCallEnd(ctx, token, info, nil)

	data := reply.Bytes()
	if len(data) >= 5 && data[0] != 0 {
		return int32(binary.LittleEndian.Uint32(data[1:5])), true
	}
	return 0, false
}

// Tick is driven by the host's main loop. It sends a tick to an initialized
// client, unless the client seems paused in a debugger, and then services
// everything the client sent in the meantime.
func (b *Bridge) Tick(ctx context.Context) {
	ctx, unlock := b.lock(ctx)
	defer unlock()

	st := b.Status()
	if b.IsClientConnected() && st.canCommunicate() && st.ClientReceivedInit {
		b.indicator.SetIdle(false)
		if !b.IsDebugging(true) {
			b.stampTick()
			b.send(protocol.OpTick, nil)
			metrics.RecordTick("sent")
		} else {
			metrics.RecordTick("suppressed")
		}
	}

	for {
		stat, reply := b.receiveOne(ctx, 0)
		if reply != nil {
			b.log.Error().Int("len", reply.Len()).Msg("unhandled response in tick")
			reply.Release()
		}
		if stat == NoCommand || stat == ConnDead {
			return
		}
	}
}
