package bridge

import (
	"context"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

// Start modes carried by the start command.
const (
	StartNone     byte = 0
	StartGMX      byte = 1
	StartFakeInit byte = 2
)

func (b *Bridge) start(ctx context.Context, payload []byte) {
	b.log.Info().Msg("the game mode has started")
	b.update((*Status).started)

	mode := StartNone
	if len(payload) > 0 {
		mode = payload[0]
	}

	switch mode {
	case StartNone:
		b.log.Debug().Msg("using 'none' start method")
	case StartGMX:
		b.log.Debug().Msg("using 'gmx' start method")
		if b.Status().ServerReceivedInit {
			b.log.Debug().Msg("sending gmx to attach game mode")
			b.host.SendRconCommand("gmx")
		}
	case StartFakeInit:
		b.log.Debug().Msg("using 'fake gmx' start method")
		if b.Status().ServerReceivedInit {
			b.fakeInit(ctx)
		}
	default:
		b.log.Error().Uint8("mode", mode).Msg("invalid game mode start mode")
	}
}

// fakeInit replays OnGameModeInit for a client that attached after the host
// already initialized.
func (b *Bridge) fakeInit(ctx context.Context) {
	b.update((*Status).initReceived)

	buf, ok := b.callbacks.Fill(OnGameModeInit, nil, true)
	if !ok {
		return
	}
	info := CallInfo{Kind: CallFakeInit, Name: OnGameModeInit, Epoch: b.Snapshot().Epoch}
	ctx, token := b.hook.OnCallStart(ctx, info)
	b.send(protocol.OpPublicCall, buf)
	reply, ok := b.ReceiveUntilUnhandled(ctx)
	defer reply.Release()
	if !ok || reply.Len() == 0 {
		b.log.Error().Str("callback", OnGameModeInit).Msg("received no response to callback")
		b.hook.OnCallEnd(ctx, token, info, ErrNoReply)
		return
	}
	b.hook.OnCallEnd(ctx, token, info, nil)
}
