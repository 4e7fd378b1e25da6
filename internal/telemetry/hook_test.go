package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
)

func newTestHook() (bridge.Hook, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	sr := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	cfg := DefaultConfig()
	cfg.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	cfg.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return NewHook(cfg), sr, reader
}

func TestHookSpans(t *testing.T) {
	h, sr, _ := newTestHook()
	ctx := context.Background()

	info := bridge.CallInfo{Kind: bridge.CallPublic, Name: "OnPlayerConnect", Epoch: "e1"}
	cctx, tok := h.OnCallStart(ctx, info)
	if !trace.SpanFromContext(cctx).SpanContext().IsValid() {
		t.Fatalf("OnCallStart did not put a span in the context")
	}
	h.OnCallEnd(cctx, tok, info, nil)

	ninfo := bridge.CallInfo{Kind: bridge.CallNative, Name: "SetPlayerHealth"}
	nctx, ntok := h.OnCallStart(ctx, ninfo)
	h.OnCallEnd(nctx, ntok, ninfo, errors.New("boom"))

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d; want 2", len(spans))
	}
	if spans[0].Name() != "gmbridge/public_call/OnPlayerConnect" || spans[0].SpanKind() != trace.SpanKindClient {
		t.Fatalf("public span = %q %v", spans[0].Name(), spans[0].SpanKind())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Fatalf("public span status = %v; want Ok", spans[0].Status().Code)
	}
	if spans[1].SpanKind() != trace.SpanKindServer || spans[1].Status().Code != codes.Error {
		t.Fatalf("native span = %v %v", spans[1].SpanKind(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("error not recorded on native span")
	}
}

func TestHookMetrics(t *testing.T) {
	h, _, reader := newTestHook()
	ctx := context.Background()
	info := bridge.CallInfo{Kind: bridge.CallPublic, Name: "OnGameModeInit"}
	for i := 0; i < 3; i++ {
		c, tok := h.OnCallStart(ctx, info)
		h.OnCallEnd(c, tok, info, nil)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gmbridge.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("gmbridge.calls data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 3 {
		t.Fatalf("gmbridge.calls = %d; want 3", total)
	}
}

func TestHookIgnoresForeignToken(t *testing.T) {
	h, sr, _ := newTestHook()
	h.OnCallEnd(context.Background(), "nope", bridge.CallInfo{}, nil)
	if len(sr.Ended()) != 0 {
		t.Fatalf("foreign token ended a span")
	}
}

func TestSetup(t *testing.T) {
	ctx := context.Background()

	if _, err := Setup(ctx, "jaeger", nil); err == nil {
		t.Fatalf("Setup accepted an unknown exporter")
	}
	shutdown, err := Setup(ctx, ExporterNone, nil)
	if err != nil || shutdown(ctx) != nil {
		t.Fatalf("Setup(none) = %v", err)
	}

	var buf bytes.Buffer
	shutdown, err = Setup(ctx, ExporterStdout, &buf)
	if err != nil {
		t.Fatalf("Setup(stdout): %v", err)
	}
	h := NewHook(DefaultConfig())
	info := bridge.CallInfo{Kind: bridge.CallFakeInit, Name: "OnGameModeInit"}
	c, tok := h.OnCallStart(ctx, info)
	h.OnCallEnd(c, tok, info, nil)
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "gmbridge/fake_init/OnGameModeInit") {
		t.Fatalf("exported output lacks the span: %s", buf.String())
	}
}
