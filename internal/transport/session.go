package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

// inboxSize bounds how many decoded commands may wait for the bridge.
const inboxSize = 64

// session is one adopted client. A reader goroutine owned by the concrete
// transport feeds in; the bridge drains it through receive.
type session struct {
	write   func(op protocol.Opcode, payload []byte) error
	closeFn func() error

	in   chan protocol.Command
	done chan struct{}
	quit chan struct{}

	mu        sync.Mutex
	err       error
	endOnce   sync.Once
	closeOnce sync.Once
}

func newSession(write func(protocol.Opcode, []byte) error, closeFn func() error) *session {
	return &session{
		write:   write,
		closeFn: closeFn,
		in:      make(chan protocol.Command, inboxSize),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// deliver queues cmd for the bridge. It reports false once the session is
// being closed so the reader can stop.
func (s *session) deliver(cmd protocol.Command) bool {
	select {
	case s.in <- cmd:
		return true
	case <-s.quit:
		return false
	}
}

// finish marks the channel dead after the reader stops.
func (s *session) finish(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *session) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *session) send(op protocol.Opcode, payload []byte) error {
	if !s.alive() {
		return s.closedErr()
	}
	if err := s.write(op, payload); err != nil {
		s.finish(err)
		return fmt.Errorf("send %s: %w", op, ErrClosed)
	}
	return nil
}

func (s *session) receive(wait time.Duration) (protocol.Command, error) {
	select {
	case cmd := <-s.in:
		return cmd, nil
	default:
	}
	if !s.alive() {
		return s.drain()
	}
	if wait <= 0 {
		return protocol.Command{}, ErrNoCommand
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case cmd := <-s.in:
		return cmd, nil
	case <-s.done:
		return s.drain()
	case <-t.C:
		return protocol.Command{}, ErrNoCommand
	}
}

// drain hands out commands that arrived before the channel died.
func (s *session) drain() (protocol.Command, error) {
	select {
	case cmd := <-s.in:
		return cmd, nil
	default:
		return protocol.Command{}, s.closedErr()
	}
}

func (s *session) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, s.err)
	}
	return ErrClosed
}

func (s *session) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		err = s.closeFn()
		s.finish(nil)
	})
	return err
}

// newStreamSession frames commands over a byte stream and starts its reader.
func newStreamSession(conn net.Conn, writeTimeout time.Duration) *session {
	var wmu sync.Mutex
	write := func(op protocol.Opcode, payload []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		if writeTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		return protocol.WriteFrame(conn, op, payload)
	}
	s := newSession(write, conn.Close)
	go func() {
		for {
			cmd, err := protocol.ReadFrame(conn)
			if err != nil {
				s.finish(err)
				return
			}
			if !s.deliver(cmd) {
				return
			}
		}
	}()
	return s
}

// endpoint implements the client half of Transport shared by every
// implementation: adopting a pending session and talking to it.
type endpoint struct {
	mu      sync.Mutex
	pending chan *session
	cur     *session
}

func newEndpoint() *endpoint {
	return &endpoint{pending: make(chan *session, 1)}
}

// offer queues s for adoption. It reports false when a client is already
// waiting.
func (e *endpoint) offer(s *session) bool {
	select {
	case e.pending <- s:
		return true
	default:
		return false
	}
}

func (e *endpoint) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != nil {
		if e.cur.alive() {
			return nil
		}
		_ = e.cur.close()
		e.cur = nil
	}
	for {
		select {
		case s := <-e.pending:
			if !s.alive() {
				_ = s.close()
				continue
			}
			e.cur = s
			return nil
		default:
			return ErrNoClient
		}
	}
}

func (e *endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && e.cur.alive()
}

func (e *endpoint) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

func (e *endpoint) Send(op protocol.Opcode, payload []byte) error {
	s := e.current()
	if s == nil {
		return ErrClosed
	}
	return s.send(op, payload)
}

func (e *endpoint) Receive(wait time.Duration) (protocol.Command, error) {
	s := e.current()
	if s == nil {
		return protocol.Command{}, ErrClosed
	}
	return s.receive(wait)
}

func (e *endpoint) Disconnect() {
	e.mu.Lock()
	s := e.cur
	e.cur = nil
	e.mu.Unlock()
	if s != nil {
		_ = s.close()
	}
}

// closeAll drops the current and any pending session.
func (e *endpoint) closeAll() {
	e.Disconnect()
	for {
		select {
		case s := <-e.pending:
			_ = s.close()
		default:
			return
		}
	}
}
