package host

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
	"github.com/gaspardpetit/gmbridge/internal/callbacks"
	"github.com/gaspardpetit/gmbridge/internal/natives"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
	"github.com/gaspardpetit/gmbridge/internal/transport"
)

// runClient plays a game mode that subscribes to OnPlayerConnect, asks for
// a gmx start and answers every public call with 42.
func runClient(conn net.Conn, inits chan<- struct{}) {
	var once sync.Once
	_ = protocol.WriteFrame(conn, protocol.OpRegisterCall, []byte("OnPlayerConnect\x00\x01"))
	_ = protocol.WriteFrame(conn, protocol.OpStart, []byte{bridge.StartGMX})
	for {
		cmd, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		if cmd.Op != protocol.OpPublicCall {
			continue
		}
		if protocol.TrimCString(cmd.Payload) == bridge.OnGameModeInit {
			once.Do(func() { close(inits) })
		}
		ret := []byte{1, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(ret[1:], 42)
		if err := protocol.WriteFrame(conn, protocol.OpResponse, ret); err != nil {
			return
		}
	}
}

func TestHostDrivesBridge(t *testing.T) {
	p := transport.NewPipe(time.Second)
	h := New(time.Millisecond)
	b := bridge.New(bridge.Options{
		Transport: p,
		Natives:   natives.New(),
		Callbacks: callbacks.New(),
		Host:      h,
		PollWait:  10 * time.Millisecond,
	})
	defer func() { _ = b.Close() }()

	conn, err := p.Dial()
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	inits := make(chan struct{})
	go runClient(conn, inits)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx, b) }()
	defer func() { cancel(); <-errc }()

	select {
	case <-inits:
	case <-time.After(3 * time.Second):
		t.Fatalf("client never received OnGameModeInit after gmx")
	}

	v, ok, err := h.Call(context.Background(), "OnPlayerConnect", int32(3))
	if err != nil || !ok || v != 42 {
		t.Fatalf("Call = %d, %v, %v; want 42, true, nil", v, ok, err)
	}
	st := b.Status()
	if !st.ClientConnected || !st.ClientStarted || !st.ClientReceivedInit || !st.ServerReceivedInit {
		t.Fatalf("status = %+v", st)
	}
}

func TestClosedBridgeStopsListening(t *testing.T) {
	tcp := transport.NewTCP("127.0.0.1:0", time.Second)
	b := bridge.New(bridge.Options{
		Transport: tcp,
		Natives:   natives.New(),
		Callbacks: callbacks.New(),
	})
	conn, err := net.Dial("tcp", tcp.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for !b.IsClientConnected() {
		if time.Now().After(deadline) {
			t.Fatalf("client never adopted")
		}
		b.ReceiveOne(ctx)
		time.Sleep(time.Millisecond)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stat, _ := b.ReceiveOne(ctx); stat != bridge.ConnDead {
		t.Fatalf("ReceiveOne after Close = %v; want ConnDead", stat)
	}
	if tcp.Ready() || tcp.Addr() != nil {
		t.Fatalf("listener re-armed after Close: %v", tcp.Addr())
	}
}
