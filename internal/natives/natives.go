// Package natives exposes host functions to the game mode client. The client
// resolves a native by name once per connection and then invokes it by
// handle with self-describing arguments.
package natives

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

var (
	// ErrUnknownHandle is returned when invoking a handle that was never
	// resolved in the current connection.
	ErrUnknownHandle = errors.New("natives: unknown handle")
	// ErrBadArguments is returned when the argument encoding does not match
	// its format string.
	ErrBadArguments = errors.New("natives: malformed arguments")
)

// Func is a host function. Arguments are int32, float32 or string values in
// the order given by the caller's format string.
type Func func(ctx context.Context, args []any) (int32, error)

// Registry maps names to host functions and hands out per-connection
// handles.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[string]Func
	handles []string
	byName  map[string]int32
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		funcs:  make(map[string]Func),
		byName: make(map[string]int32),
	}
}

// Register makes fn callable by the client as name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Handle resolves name to a handle, or -1 when no such native exists.
func (r *Registry) Handle(name string) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byName[name]; ok {
		return h
	}
	if _, ok := r.funcs[name]; !ok {
		return -1
	}
	h := int32(len(r.handles))
	r.handles = append(r.handles, name)
	r.byName[name] = h
	return h
}

// Name returns the native behind handle, or "".
func (r *Registry) Name(handle int32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if handle < 0 || int(handle) >= len(r.handles) {
		return ""
	}
	return r.handles[handle]
}

// Invoke decodes [handle i32][format cstring][args], runs the native and
// encodes its i32 return value.
func (r *Registry) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	rd := protocol.NewReader(payload)
	handle := rd.Int32()
	format := rd.CString()
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	name := r.Name(handle)
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if name == "" || !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}

	args, err := decodeArgs(format, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ret, err := fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return protocol.NewBuilder(4).Int32(ret).Payload(), nil
}

// Clear forgets every handle. Registered functions stay.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = nil
	r.byName = make(map[string]int32)
}

func decodeArgs(format string, rd *protocol.Reader) ([]any, error) {
	args := make([]any, 0, len(format))
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case 'd', 'i':
			args = append(args, rd.Int32())
		case 'f':
			args = append(args, rd.Float32())
		case 's':
			args = append(args, rd.CString())
		default:
			return nil, fmt.Errorf("%w: format %q", ErrBadArguments, format[i])
		}
	}
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return args, nil
}
