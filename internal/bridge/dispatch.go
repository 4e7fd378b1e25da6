package bridge

import (
	"context"
	"encoding/binary"

	"github.com/gaspardpetit/gmbridge/internal/metrics"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

// ReceiveStatus is the outcome of one receive attempt.
type ReceiveStatus int

const (
	// Handled means a built-in command ran.
	Handled ReceiveStatus = iota
	// Unhandled means the command was not a built-in; its payload is
	// returned as a candidate reply.
	Unhandled
	// NoCommand means nothing was waiting.
	NoCommand
	// ConnDead means no client is reachable.
	ConnDead
)

func (s ReceiveStatus) String() string {
	switch s {
	case Handled:
		return "handled"
	case Unhandled:
		return "unhandled"
	case NoCommand:
		return "no_command"
	case ConnDead:
		return "conn_dead"
	default:
		return "unknown"
	}
}

// dispatch runs the handler for cmd. Anything that is not a built-in,
// including an explicit response, is unclaimed and handed back as a Reply.
func (b *Bridge) dispatch(ctx context.Context, cmd protocol.Command) (ReceiveStatus, *Reply) {
	switch cmd.Op {
	case protocol.OpPing:
		b.send(protocol.OpPong, nil)
	case protocol.OpPrint:
		b.log.Info().Str("source", "client").Msg(protocol.TrimCString(cmd.Payload))
	case protocol.OpRegisterCall:
		b.registerCall(cmd.Payload)
	case protocol.OpFindNative:
		b.findNative(cmd.Payload)
	case protocol.OpInvokeNative:
		b.invokeNative(ctx, cmd.Payload)
	case protocol.OpReconnect:
		b.log.Info().Msg("the game mode is reconnecting")
		b.update((*Status).reconnecting)
		b.Disconnect("", true)
	case protocol.OpDisconnect:
		b.log.Info().Msg("the game mode is disconnecting")
		b.update((*Status).disconnecting)
	case protocol.OpStart:
		b.start(ctx, cmd.Payload)
	case protocol.OpAlive:
	default:
		return Unhandled, newReply(cmd.Payload)
	}
	return Handled, nil
}

func (b *Bridge) registerCall(payload []byte) {
	b.log.Debug().Str("callback", protocol.TrimCString(payload)).Msg("register call")
	if err := b.callbacks.Register(payload); err != nil {
		b.log.Error().Err(err).Msg("invalid callback registration")
	}
}

// findNative replies [correlation u16][handle i32].
func (b *Bridge) findNative(payload []byte) {
	r := protocol.NewReader(payload)
	corr := r.Uint16()
	handle := int32(-1)
	if r.Err() != nil {
		b.log.Error().Int("len", len(payload)).Msg("malformed find_native")
	} else {
		name := protocol.TrimCString(r.Rest())
		handle = b.natives.Handle(name)
		b.log.Debug().Str("native", name).Int32("handle", handle).Msg("find native")
	}
	b.send(protocol.OpReply, protocol.NewBuilder(6).Uint16(corr).Int32(handle).Payload())
}

// invokeNative replies [correlation u16][result]. A failed invocation is
// answered with the correlation id alone.
func (b *Bridge) invokeNative(ctx context.Context, payload []byte) {
	if len(payload) < 2 {
		b.log.Error().Int("len", len(payload)).Msg("malformed invoke_native")
		b.send(protocol.OpReply, []byte{0, 0})
		return
	}
	corr := payload[:2]
	args := payload[2:]

	info := CallInfo{Kind: CallNative, Epoch: b.Snapshot().Epoch}
	if len(args) >= 4 {
		info.Name = b.natives.Name(int32(binary.LittleEndian.Uint32(args)))
	}
	ctx, token := b.hook.OnCallStart(ctx, info)
	result, err := b.natives.Invoke(ctx, args)
	if err == nil && len(result)+len(corr) > protocol.MaxFrameSize {
		err = protocol.ErrFrameTooLarge
	}
	b.hook.OnCallEnd(ctx, token, info, err)
	metrics.RecordNativeInvocation(err == nil)

	out := protocol.NewBuilder(len(corr) + len(result)).Bytes(corr)
	if err != nil {
		b.log.Error().Err(err).Str("native", info.Name).Msg("native invocation failed")
	} else {
		out.Bytes(result)
	}
	b.log.Debug().Int("len", len(args)).Int("reply_len", out.Len()).Msg("native invoked")
	b.send(protocol.OpReply, out.Payload())
}
