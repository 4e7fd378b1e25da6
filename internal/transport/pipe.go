package transport

import (
	"net"
	"sync"
	"time"
)

// Pipe is an in-process transport. Dial hands out the client end of a
// net.Pipe whose server end becomes the next client to adopt.
type Pipe struct {
	*endpoint

	writeTimeout time.Duration

	mu     sync.Mutex
	ready  bool
	closed bool
}

// NewPipe returns an unarmed Pipe.
func NewPipe(writeTimeout time.Duration) *Pipe {
	return &Pipe{endpoint: newEndpoint(), writeTimeout: writeTimeout}
}

func (p *Pipe) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.ready = true
	return nil
}

func (p *Pipe) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Dial connects a new client and returns its end of the stream.
func (p *Pipe) Dial() (net.Conn, error) {
	p.mu.Lock()
	ready := p.ready && !p.closed
	p.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}
	server, client := net.Pipe()
	s := newStreamSession(server, p.writeTimeout)
	if !p.offer(s) {
		_ = s.close()
		_ = client.Close()
		return nil, ErrBusy
	}
	return client, nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.ready = false
	p.mu.Unlock()
	p.closeAll()
	return nil
}
