package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/reconnect"
)

// TCP accepts the client on a TCP listener and frames commands as
// [len u32 LE][opcode u8][payload].
type TCP struct {
	*endpoint

	addr         string
	writeTimeout time.Duration
	backoff      *reconnect.Backoff

	mu sync.Mutex
	ln net.Listener
}

// NewTCP returns a TCP transport that will listen on addr once Setup runs.
func NewTCP(addr string, writeTimeout time.Duration) *TCP {
	return &TCP{
		endpoint:     newEndpoint(),
		addr:         addr,
		writeTimeout: writeTimeout,
		backoff:      reconnect.NewBackoff(),
	}
}

// Setup starts listening. Failed attempts are retried no faster than the
// reconnect schedule allows.
func (t *TCP) Setup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return nil
	}
	if !t.backoff.Ready() {
		return fmt.Errorf("listen %s: %w", t.addr, ErrNotReady)
	}
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		d := t.backoff.Fail()
		logx.Log.Error().Err(err).Str("addr", t.addr).Dur("retry_in", d).Msg("listen failed")
		return fmt.Errorf("listen %s: %w", t.addr, err)
	}
	t.backoff.Reset()
	t.ln = ln
	logx.Log.Info().Str("addr", ln.Addr().String()).Msg("waiting for game mode client")
	go t.acceptLoop(ln)
	return nil
}

// Ready reports whether the listener is up.
func (t *TCP) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ln != nil
}

// Addr returns the bound listener address, or nil before Setup.
func (t *TCP) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *TCP) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logx.Log.Error().Err(err).Msg("accept failed")
			}
			t.mu.Lock()
			if t.ln == ln {
				t.ln = nil
			}
			t.mu.Unlock()
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		s := newStreamSession(conn, t.writeTimeout)
		if !t.offer(s) {
			logx.Log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("rejecting client: another client is waiting")
			_ = s.close()
			continue
		}
		logx.Log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client accepted")
	}
}

// Close stops listening and drops every client.
func (t *TCP) Close() error {
	t.mu.Lock()
	ln := t.ln
	t.ln = nil
	t.mu.Unlock()
	t.closeAll()
	if ln != nil {
		return ln.Close()
	}
	return nil
}
