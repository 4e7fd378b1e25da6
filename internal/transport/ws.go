package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
	"github.com/gaspardpetit/gmbridge/internal/reconnect"
)

// WebSocket accepts the client as a websocket on an HTTP path. Each binary
// message carries one command as [opcode u8][payload].
type WebSocket struct {
	*endpoint

	addr         string
	path         string
	origins      []string
	writeTimeout time.Duration
	backoff      *reconnect.Backoff

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewWebSocket returns a websocket transport serving path on addr.
// origins lists the host patterns allowed for cross-origin clients.
func NewWebSocket(addr, path string, origins []string, writeTimeout time.Duration) *WebSocket {
	if path == "" {
		path = "/"
	}
	return &WebSocket{
		endpoint:     newEndpoint(),
		addr:         addr,
		path:         path,
		origins:      origins,
		writeTimeout: writeTimeout,
		backoff:      reconnect.NewBackoff(),
	}
}

// Handler returns the HTTP handler accepting clients, for mounting on an
// existing server instead of calling Setup.
func (w *WebSocket) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(w.path, w.accept)
	return r
}

func (w *WebSocket) Setup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.srv != nil {
		return nil
	}
	if !w.backoff.Ready() {
		return fmt.Errorf("listen %s: %w", w.addr, ErrNotReady)
	}
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		d := w.backoff.Fail()
		logx.Log.Error().Err(err).Str("addr", w.addr).Dur("retry_in", d).Msg("listen failed")
		return fmt.Errorf("listen %s: %w", w.addr, err)
	}
	w.backoff.Reset()
	srv := &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}
	w.srv, w.ln = srv, ln
	actual := ln.Addr().String()
	logx.Log.Info().Str("addr", actual).Str("path", w.path).Msg("waiting for game mode client")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("websocket server error")
		}
		w.mu.Lock()
		if w.srv == srv {
			w.srv, w.ln = nil, nil
		}
		w.mu.Unlock()
	}()
	return nil
}

func (w *WebSocket) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.srv != nil
}

// Addr returns the bound listener address, or nil before Setup.
func (w *WebSocket) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

// accept serves one client for the lifetime of its connection.
func (w *WebSocket) accept(rw http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{OriginPatterns: w.origins})
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()
	c.SetReadLimit(protocol.MaxFrameSize + 1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	write := func(op protocol.Opcode, payload []byte) error {
		b, err := protocol.EncodeMessage(op, payload)
		if err != nil {
			return err
		}
		wctx := ctx
		if w.writeTimeout > 0 {
			var wcancel context.CancelFunc
			wctx, wcancel = context.WithTimeout(ctx, w.writeTimeout)
			defer wcancel()
		}
		return c.Write(wctx, websocket.MessageBinary, b)
	}
	s := newSession(write, func() error {
		cancel()
		return nil
	})
	if !w.offer(s) {
		logx.Log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting client: another client is waiting")
		_ = c.Close(websocket.StatusTryAgainLater, "another client is waiting")
		return
	}
	logx.Log.Debug().Str("remote", r.RemoteAddr).Msg("client accepted")

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.StatusNormalClosure {
				logx.Log.Warn().Str("reason", ce.Reason).Int("code", int(ce.Code)).Msg("client closed websocket")
			}
			s.finish(err)
			return
		}
		if typ != websocket.MessageBinary {
			logx.Log.Warn().Msg("ignoring text message from client")
			continue
		}
		cmd, err := protocol.DecodeMessage(data)
		if err != nil {
			s.finish(err)
			_ = c.Close(websocket.StatusPolicyViolation, "malformed command")
			return
		}
		if !s.deliver(cmd) {
			_ = c.Close(websocket.StatusNormalClosure, "bridge disconnect")
			return
		}
	}
}

// Close stops the HTTP server and drops every client.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	srv := w.srv
	w.srv, w.ln = nil, nil
	w.mu.Unlock()
	w.closeAll()
	if srv != nil {
		return srv.Close()
	}
	return nil
}
