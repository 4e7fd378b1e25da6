package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/gmbridge/internal/logx"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "gmbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	commandsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_commands_received_total",
			Help: "Commands received from the game mode client",
		},
		[]string{"op"},
	)

	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_commands_sent_total",
			Help: "Commands sent to the game mode client",
		},
		[]string{"op"},
	)

	publicCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_public_calls_total",
			Help: "Public calls forwarded to the client",
		},
		[]string{"outcome"},
	)

	roundTripDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmbridge_round_trip_seconds",
			Help:    "Time from sending a public call to receiving its reply",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)

	nativeInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_native_invocations_total",
			Help: "Native invocations requested by the client",
		},
		[]string{"outcome"},
	)

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_ticks_total",
			Help: "Host ticks by what the bridge did with them",
		},
		[]string{"outcome"},
	)

	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmbridge_disconnects_total",
			Help: "Client disconnects by kind",
		},
		[]string{"kind"},
	)

	clientConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gmbridge_client_connected",
		Help: "Whether a game mode client is connected (1 or 0)",
	})

	debuggerPaused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gmbridge_client_debugger_paused",
		Help: "Whether the client appears paused in a debugger (1 or 0)",
	})
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, commandsReceived, commandsSent, publicCalls, roundTripDuration,
		nativeInvocations, ticks, disconnects, clientConnected, debuggerPaused)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordCommandReceived counts one command read from the client.
func RecordCommandReceived(op string) {
	commandsReceived.WithLabelValues(op).Inc()
}

// RecordCommandSent counts one command written to the client.
func RecordCommandSent(op string) {
	commandsSent.WithLabelValues(op).Inc()
}

// RecordPublicCall records the outcome and round-trip time of a public call.
func RecordPublicCall(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "no_reply"
	}
	publicCalls.WithLabelValues(outcome).Inc()
	roundTripDuration.Observe(d.Seconds())
}

// RecordNativeInvocation counts one native invocation.
func RecordNativeInvocation(success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	nativeInvocations.WithLabelValues(outcome).Inc()
}

// RecordTick counts a tick as "sent", "suppressed" or "keepalive".
func RecordTick(outcome string) {
	ticks.WithLabelValues(outcome).Inc()
}

// RecordDisconnect counts a disconnect as "expected", "client" or "unexpected".
func RecordDisconnect(kind string) {
	disconnects.WithLabelValues(kind).Inc()
}

// SetClientConnected updates the client connected gauge.
func SetClientConnected(v bool) {
	clientConnected.Set(boolToFloat(v))
}

// SetDebuggerPaused updates the debugger pause gauge.
func SetDebuggerPaused(v bool) {
	debuggerPaused.Set(boolToFloat(v))
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// StartMetricsServer starts an HTTP server exposing Prometheus metrics on /metrics.
// It returns the address it is listening on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	Register(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("metrics server error")
		}
	}()
	return actual, nil
}
