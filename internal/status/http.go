package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/gaspardpetit/gmbridge/internal/bridge"
	"github.com/gaspardpetit/gmbridge/internal/logx"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

// ProcessInfo is a snapshot of the host process.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	Goroutines int     `json:"goroutines"`
}

// Report is the body of GET /status.
type Report struct {
	Indicator State           `json:"indicator"`
	Bridge    bridge.Snapshot `json:"bridge"`
	Process   ProcessInfo     `json:"process"`
	Version   VersionInfo     `json:"version"`
}

// Server serves the operator status endpoints.
type Server struct {
	Indicator *Indicator
	// Snapshot reports the bridge state; nil reports a zero snapshot.
	Snapshot       func() bridge.Snapshot
	Version        VersionInfo
	AllowedOrigins []string
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if len(s.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Version)
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.report(r.Context()))
	})
	return r
}

func (s *Server) report(ctx context.Context) Report {
	rep := Report{Version: s.Version, Process: processInfo(ctx)}
	if s.Indicator != nil {
		rep.Indicator = s.Indicator.State()
	}
	if s.Snapshot != nil {
		rep.Bridge = s.Snapshot()
	}
	return rep
}

func processInfo(ctx context.Context) ProcessInfo {
	info := ProcessInfo{PID: int32(os.Getpid()), Goroutines: runtime.NumGoroutine()}
	p, err := process.NewProcessWithContext(ctx, info.PID)
	if err != nil {
		return info
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	return info
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// StartStatusServer serves s on addr until ctx is done and returns the
// address it is listening on.
func StartStatusServer(ctx context.Context, addr string, s *Server) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}
