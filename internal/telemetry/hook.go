// Package telemetry adds OpenTelemetry tracing and metrics to bridge calls.
//
// Usage:
//
//	shutdown, _ := telemetry.Setup(ctx, "stdout", os.Stderr)
//	defer shutdown(ctx)
//	b := bridge.New(bridge.Options{Hook: telemetry.NewHook(telemetry.DefaultConfig()), ...})
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
)

const instrumentationName = "gmbridge"

// Config configures the hook.
type Config struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	EnableTracing bool
	EnableMetrics bool
	// RecordErrors calls RecordError on the span of failed calls.
	RecordErrors bool
	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// DefaultConfig enables everything against the global providers.
func DefaultConfig() Config {
	return Config{EnableTracing: true, EnableMetrics: true, RecordErrors: true}
}

// NewHook returns a bridge.Hook that opens one span per call and records a
// call counter and a duration histogram.
func NewHook(cfg Config) bridge.Hook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	h := &hook{cfg: cfg, tracer: cfg.TracerProvider.Tracer(instrumentationName)}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.calls, _ = meter.Int64Counter("gmbridge.calls",
			metric.WithUnit("{call}"),
			metric.WithDescription("Number of bridge calls"),
		)
		h.duration, _ = meter.Float64Histogram("gmbridge.call.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of bridge calls"),
		)
	}
	return h
}

type hook struct {
	cfg      Config
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

type spanToken struct {
	span  trace.Span
	start time.Time
}

// Public calls go from host to client; native invocations come in from the
// client.
func spanKind(kind string) trace.SpanKind {
	if kind == bridge.CallNative {
		return trace.SpanKindServer
	}
	return trace.SpanKindClient
}

func (h *hook) OnCallStart(ctx context.Context, info bridge.CallInfo) (context.Context, bridge.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{start: time.Now()}
	}
	attrs := []attribute.KeyValue{
		attribute.String("gmbridge.call.kind", info.Kind),
		attribute.String("gmbridge.call.name", info.Name),
	}
	if info.Epoch != "" {
		attrs = append(attrs, attribute.String("gmbridge.epoch", info.Epoch))
	}
	attrs = append(attrs, h.cfg.Attributes...)
	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("gmbridge/%s/%s", info.Kind, info.Name),
		trace.WithSpanKind(spanKind(info.Kind)),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, start: time.Now()}
}

func (h *hook) OnCallEnd(ctx context.Context, token bridge.HookToken, info bridge.CallInfo, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if h.cfg.EnableMetrics {
		attrs := metric.WithAttributes(
			attribute.String("gmbridge.call.kind", info.Kind),
			attribute.String("gmbridge.call.name", info.Name),
			attribute.String("status", outcome),
		)
		if h.calls != nil {
			h.calls.Add(ctx, 1, attrs)
		}
		if h.duration != nil {
			h.duration.Record(ctx, time.Since(st.start).Seconds(), attrs)
		}
	}
	if st.span == nil {
		return
	}
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if h.cfg.RecordErrors {
			st.span.RecordError(err)
		}
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}
