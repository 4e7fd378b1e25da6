package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	RecordCommandReceived("ping")
	RecordCommandReceived("ping")
	RecordCommandSent("pong")
	RecordPublicCall(true, 2*time.Millisecond)
	RecordPublicCall(false, time.Millisecond)
	RecordNativeInvocation(false)
	RecordTick("keepalive")
	RecordDisconnect("unexpected")
	SetClientConnected(true)
	SetDebuggerPaused(true)
	SetDebuggerPaused(false)

	if v := testutil.ToFloat64(commandsReceived.WithLabelValues("ping")); v != 2 {
		t.Fatalf("commands received: %v", v)
	}
	if v := testutil.ToFloat64(commandsSent.WithLabelValues("pong")); v != 1 {
		t.Fatalf("commands sent: %v", v)
	}
	if v := testutil.ToFloat64(publicCalls.WithLabelValues("no_reply")); v != 1 {
		t.Fatalf("public calls no_reply: %v", v)
	}
	if v := testutil.ToFloat64(nativeInvocations.WithLabelValues("error")); v != 1 {
		t.Fatalf("native invocations: %v", v)
	}
	if v := testutil.ToFloat64(ticks.WithLabelValues("keepalive")); v != 1 {
		t.Fatalf("ticks keepalive: %v", v)
	}
	if v := testutil.ToFloat64(disconnects.WithLabelValues("unexpected")); v != 1 {
		t.Fatalf("disconnects: %v", v)
	}
	if v := testutil.ToFloat64(clientConnected); v != 1 {
		t.Fatalf("client connected: %v", v)
	}
	if v := testutil.ToFloat64(debuggerPaused); v != 0 {
		t.Fatalf("debugger paused: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if n := testutil.CollectAndCount(roundTripDuration); n != 1 {
		t.Fatalf("round trip histogram series = %d; want 1", n)
	}
}

func TestStartMetricsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := StartMetricsServer(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	RecordCommandReceived("alive")
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `gmbridge_commands_received_total{op="alive"}`) {
		t.Fatalf("metrics output missing command counter:\n%s", body)
	}
}
