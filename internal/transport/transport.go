// Package transport carries framed commands between the bridge and the game
// mode client. Every implementation exposes the same polling contract: Receive
// returns ErrNoCommand instead of blocking past the requested wait.
package transport

import (
	"errors"
	"time"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

var (
	// ErrNoCommand is returned by Receive when nothing arrived within the wait.
	ErrNoCommand = errors.New("transport: no command available")
	// ErrClosed is returned once the client channel is dead.
	ErrClosed = errors.New("transport: connection closed")
	// ErrNoClient is returned by Connect when no client is waiting.
	ErrNoClient = errors.New("transport: no client waiting")
	// ErrBusy is returned when another client is already waiting.
	ErrBusy = errors.New("transport: another client is waiting")
	// ErrNotReady is returned when the transport has not been set up.
	ErrNotReady = errors.New("transport: not set up")
)

// Transport is the byte channel the bridge drives. Implementations accept at
// most one client at a time.
type Transport interface {
	// Setup arms the transport for a future client. It is cheap to call
	// repeatedly and is a no-op when already armed.
	Setup() error
	// Ready reports whether Setup succeeded.
	Ready() bool
	// Connect adopts a waiting client, or returns ErrNoClient.
	Connect() error
	// Connected reports whether a live client is adopted.
	Connected() bool
	// Send writes one command to the client.
	Send(op protocol.Opcode, payload []byte) error
	// Receive returns the next command, waiting at most wait.
	Receive(wait time.Duration) (protocol.Command, error)
	// Disconnect drops the current client, keeping the transport armed.
	Disconnect()
	// Close releases every resource, including listeners.
	Close() error
}
