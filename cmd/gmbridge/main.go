package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
	"github.com/gaspardpetit/gmbridge/internal/callbacks"
	"github.com/gaspardpetit/gmbridge/internal/config"
	"github.com/gaspardpetit/gmbridge/internal/host"
	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/metrics"
	"github.com/gaspardpetit/gmbridge/internal/natives"
	"github.com/gaspardpetit/gmbridge/internal/secret"
	"github.com/gaspardpetit/gmbridge/internal/status"
	"github.com/gaspardpetit/gmbridge/internal/telemetry"
	"github.com/gaspardpetit/gmbridge/internal/transport"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	cfg.ConfigFile = configFileArg(os.Args[1:], cfg.ConfigFile)
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(flag.CommandLine)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "gmbridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("gmbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.LogJSON {
		logx.ConfigureJSON(cfg.LogLevel, os.Stderr)
	} else {
		logx.Configure(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		logx.Log.Fatal().Err(err).Msg("gmbridge failed")
	}
}

// configFileArg finds --config in args so the file can be loaded before the
// remaining flags are bound.
func configFileArg(args []string, def string) string {
	for i, a := range args {
		switch {
		case (a == "--config" || a == "-config") && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	return def
}

func newTransport(cfg config.BridgeConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case "tcp":
		return transport.NewTCP(cfg.ListenAddr, cfg.WriteTimeout), nil
	case "ws", "websocket":
		return transport.NewWebSocket(cfg.ListenAddr, cfg.WSPath, cfg.AllowedOrigins, cfg.WriteTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func openStore(ctx context.Context, redisAddr string) (status.Store, func(), error) {
	if redisAddr == "" {
		return status.NewMemoryStore(), func() {}, nil
	}
	rs, err := status.NewRedisStore(ctx, redisAddr, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis %s: %w", secret.MaskURL(redisAddr), err)
	}
	logx.Log.Info().Str("addr", secret.MaskURL(redisAddr)).Msg("using redis status store")
	return rs, func() { _ = rs.Close() }, nil
}

func run(ctx context.Context, cfg config.BridgeConfig) error {
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.TraceExporter, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logx.Log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer closeStore()
	ind := status.NewIndicator(store)

	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}

	nat := natives.New()
	registerNatives(nat, time.Now())

	var hook bridge.Hook
	if cfg.TraceExporter != "" && cfg.TraceExporter != telemetry.ExporterNone {
		hook = telemetry.NewHook(telemetry.DefaultConfig())
	}

	h := host.New(cfg.TickInterval)
	b := bridge.New(bridge.Options{
		Transport:  tr,
		Natives:    nat,
		Callbacks:  callbacks.New(),
		Indicator:  ind,
		Host:       h,
		Hook:       hook,
		DebugCheck: cfg.DebugCheck,
		Pause: bridge.PauseConfig{
			Timeout:           cfg.PauseTimeout,
			KeepaliveInterval: cfg.KeepaliveInterval,
			KeepaliveMinSkip:  cfg.KeepaliveMinSkip,
		},
		PollWait:   cfg.PollWait,
		WorkingDir: config.WorkingDir(),
	})
	defer func() { _ = b.Close() }()

	if cfg.MetricsAddr != "" {
		addr, err := metrics.StartMetricsServer(ctx, cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		logx.Log.Info().Str("addr", addr).Msg("metrics server listening")
	}
	if cfg.StatusAddr != "" {
		addr, err := status.StartStatusServer(ctx, cfg.StatusAddr, &status.Server{
			Indicator:      ind,
			Snapshot:       b.Snapshot,
			Version:        status.VersionInfo{Version: version, BuildSHA: buildSHA, BuildDate: buildDate},
			AllowedOrigins: cfg.AllowedOrigins,
		})
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		logx.Log.Info().Str("addr", addr).Msg("status server listening")
	}

	logx.Log.Info().
		Str("transport", cfg.Transport).
		Str("listen", cfg.ListenAddr).
		Bool("debug_check", cfg.DebugCheck).
		Str("version", version).
		Msg("gmbridge starting")

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return h.Run(gctx, b)
	})
	g.Go(func() error {
		<-gctx.Done()
		select {
		case <-done:
		case <-time.After(cfg.ShutdownGracePeriod):
			// unblocks a round trip the client never answers
			logx.Log.Warn().Dur("grace", cfg.ShutdownGracePeriod).Msg("game mode did not stop in time; closing transport")
			_ = b.Close()
		}
		return nil
	})
	return g.Wait()
}
