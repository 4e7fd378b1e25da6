package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

func TestReceiveOneBuiltinsAreHandled(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
	}{
		{"ping", cmd(protocol.OpPing)},
		{"print", cmd(protocol.OpPrint, []byte("hello\x00")...)},
		{"register_call", cmd(protocol.OpRegisterCall, []byte("OnPlayerConnect\x00\x01")...)},
		{"find_native", cmd(protocol.OpFindNative, append([]byte{1, 0}, "GetPlayerName\x00"...)...)},
		{"invoke_native", cmd(protocol.OpInvokeNative, 1, 0, 7, 0, 0, 0)},
		{"reconnect", cmd(protocol.OpReconnect)},
		{"start", cmd(protocol.OpStart)},
		{"disconnect", cmd(protocol.OpDisconnect)},
		{"alive", cmd(protocol.OpAlive)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.connect(t)
			h.tr.push(tt.cmd)
			stat, reply := h.b.ReceiveOne(context.Background())
			if stat != Handled {
				t.Fatalf("status = %v; want handled", stat)
			}
			if reply != nil {
				t.Fatalf("reply = %v; want none", reply.Bytes())
			}
		})
	}
}

func TestReceiveOneUnclaimedReturnsCopy(t *testing.T) {
	for _, op := range []protocol.Opcode{protocol.OpResponse, protocol.OpReply, 0x7F} {
		t.Run(op.String(), func(t *testing.T) {
			h := newHarness(t, false)
			h.connect(t)
			payload := []byte{1, 0x2A, 0, 0, 0}
			h.tr.push(protocol.Command{Op: op, Payload: payload})
			stat, reply := h.b.ReceiveOne(context.Background())
			defer reply.Release()
			if stat != Unhandled {
				t.Fatalf("status = %v; want unhandled", stat)
			}
			payload[0] = 0xEE
			if !bytes.Equal(reply.Bytes(), []byte{1, 0x2A, 0, 0, 0}) {
				t.Fatalf("reply = %v; want byte-exact copy", reply.Bytes())
			}
		})
	}
}

func TestReceiveOneEmptyResponse(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpResponse))
	stat, reply := h.b.ReceiveOne(context.Background())
	if stat != Unhandled || reply != nil {
		t.Fatalf("ReceiveOne = %v, %v; want unhandled without payload", stat, reply)
	}
}

func TestReceiveOneNoCommandAndNoClient(t *testing.T) {
	h := newHarness(t, false)
	if stat, _ := h.b.ReceiveOne(context.Background()); stat != ConnDead {
		t.Fatalf("status without client = %v; want conn_dead", stat)
	}
	h.connect(t)
	if stat, _ := h.b.ReceiveOne(context.Background()); stat != NoCommand {
		t.Fatalf("status on idle client = %v; want no_command", stat)
	}
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpPing))
	h.b.ReceiveOne(context.Background())
	if got := h.tr.lastSent(); got.Op != protocol.OpPong || len(got.Payload) != 0 {
		t.Fatalf("sent %v %v; want empty pong", got.Op, got.Payload)
	}
}

func TestPrintLogsClientText(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpPrint, []byte("spawned 3 vehicles\x00")...))
	h.b.ReceiveOne(context.Background())
	if h.logCount("spawned 3 vehicles") != 1 {
		t.Fatalf("client print not logged: %s", h.logs.String())
	}
}

func TestFindNativeNotFoundReply(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpFindNative, append([]byte{0x2A, 0x00}, "NoSuchNative\x00"...)...))
	h.b.ReceiveOne(context.Background())
	got := h.tr.lastSent()
	if got.Op != protocol.OpReply {
		t.Fatalf("sent op = %v; want reply", got.Op)
	}
	want := []byte{0x2A, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(got.Payload, want) {
		t.Fatalf("reply = % x; want % x", got.Payload, want)
	}
}

func TestFindNativeFound(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpFindNative, append([]byte{0x01, 0x02}, "GetPlayerName"...)...))
	h.b.ReceiveOne(context.Background())
	want := []byte{0x01, 0x02, 7, 0, 0, 0}
	if got := h.tr.lastSent().Payload; !bytes.Equal(got, want) {
		t.Fatalf("reply = % x; want % x", got, want)
	}
}

func TestInvokeNativePreservesCorrelation(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	var seen []byte
	h.nat.invoke = func(_ context.Context, payload []byte) ([]byte, error) {
		seen = append([]byte(nil), payload...)
		return []byte{0x10, 0, 0, 0}, nil
	}
	h.tr.push(cmd(protocol.OpInvokeNative, 0x34, 0x12, 7, 0, 0, 0, 'd', 0, 5, 0, 0, 0))
	h.b.ReceiveOne(context.Background())

	if !bytes.Equal(seen, []byte{7, 0, 0, 0, 'd', 0, 5, 0, 0, 0}) {
		t.Fatalf("native saw % x; want payload without correlation id", seen)
	}
	got := h.tr.lastSent()
	if got.Op != protocol.OpReply || !bytes.Equal(got.Payload, []byte{0x34, 0x12, 0x10, 0, 0, 0}) {
		t.Fatalf("sent %v % x; want reply 34 12 10 00 00 00", got.Op, got.Payload)
	}
}

func TestInvokeNativeFailureRepliesCorrelationOnly(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.nat.err = errors.New("bad format")
	h.tr.push(cmd(protocol.OpInvokeNative, 0x05, 0x00, 7, 0, 0, 0))
	h.b.ReceiveOne(context.Background())
	if got := h.tr.lastSent().Payload; !bytes.Equal(got, []byte{0x05, 0x00}) {
		t.Fatalf("reply = % x; want 05 00", got)
	}
	if h.logCount("native invocation failed") != 1 {
		t.Fatalf("failure not logged: %s", h.logs.String())
	}
}

func TestRegisterCallForwardsToCallbacks(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpRegisterCall, []byte("OnPlayerText\x00\x01\x03")...))
	h.b.ReceiveOne(context.Background())
	if !h.cb.registered["OnPlayerText"] {
		t.Fatalf("callback not registered")
	}
}

func TestReceiveUntilUnhandledInterleaving(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.nat.result = []byte{1, 0, 0, 0}
	h.tr.push(
		cmd(protocol.OpRegisterCall, []byte("OnPlayerConnect\x00\x01")...),
		cmd(protocol.OpInvokeNative, 0x09, 0x00, 7, 0, 0, 0),
		response(77),
	)
	reply, ok := h.b.ReceiveUntilUnhandled(context.Background())
	defer reply.Release()
	if !ok {
		t.Fatalf("ReceiveUntilUnhandled reported dead channel")
	}
	if !bytes.Equal(reply.Bytes(), response(77).Payload) {
		t.Fatalf("reply = % x; want final response payload", reply.Bytes())
	}
	if got := h.ev.String(); got != "register:OnPlayerConnect,invoke_native" {
		t.Fatalf("side effects = %q; want register then invoke, once each", got)
	}
	if ops := h.tr.sentOps(); len(ops) != 1 || ops[0] != protocol.OpReply {
		t.Fatalf("sent %v; want a single native reply", ops)
	}
}

func TestReceiveUntilUnhandledDeadChannel(t *testing.T) {
	h := newHarness(t, false)
	h.connect(t)
	h.tr.push(cmd(protocol.OpAlive))
	h.tr.kill()
	reply, ok := h.b.ReceiveUntilUnhandled(context.Background())
	if ok || reply != nil {
		t.Fatalf("ReceiveUntilUnhandled = %v, %v; want no reply", reply, ok)
	}
}
