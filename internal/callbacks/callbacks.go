// Package callbacks tracks which script callbacks the game mode client
// subscribed to and serializes their invocations.
package callbacks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/gmbridge/internal/logx"
	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

// ParamType is the wire type of one callback parameter.
type ParamType byte

const (
	Cell   ParamType = 0x01
	Float  ParamType = 0x02
	String ParamType = 0x03
)

func (p ParamType) String() string {
	switch p {
	case Cell:
		return "cell"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("0x%02x", byte(p))
	}
}

// ErrInvalidRegistration is returned for a malformed register_call buffer.
var ErrInvalidRegistration = errors.New("callbacks: invalid registration")

// Registry holds the client's subscriptions.
type Registry struct {
	mu    sync.RWMutex
	calls map[string][]ParamType
	log   zerolog.Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		calls: make(map[string][]ParamType),
		log:   logx.Component("callbacks"),
	}
}

// Register parses [name cstring][param type bytes...] and records the
// subscription, replacing any earlier one with the same name.
func (r *Registry) Register(buf []byte) error {
	rd := protocol.NewReader(buf)
	name := rd.CString()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegistration)
	}
	rest := rd.Rest()
	params := make([]ParamType, len(rest))
	for i, b := range rest {
		p := ParamType(b)
		if p != Cell && p != Float && p != String {
			return fmt.Errorf("%w: %s parameter %d has type %s", ErrInvalidRegistration, name, i, p)
		}
		params[i] = p
	}
	r.mu.Lock()
	r.calls[name] = params
	r.mu.Unlock()
	return nil
}

// Params returns the registered parameter types of name.
func (r *Registry) Params(name string) ([]ParamType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.calls[name]
	return p, ok
}

// Len returns the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Fill encodes [name cstring][args...] for a registered callback, coercing
// args to the registered types. Unregistered callbacks are skipped unless
// force is set, in which case args are encoded by their Go type.
func (r *Registry) Fill(name string, args []any, force bool) ([]byte, bool) {
	params, ok := r.Params(name)
	if !ok {
		if !force {
			return nil, false
		}
		params = make([]ParamType, len(args))
		for i, a := range args {
			params[i] = typeOf(a)
		}
	}
	if len(args) < len(params) {
		r.log.Error().Str("callback", name).Int("want", len(params)).Int("got", len(args)).Msg("too few callback arguments")
		return nil, false
	}

	b := protocol.NewBuilder(64).CString(name)
	for i, p := range params {
		if err := encode(b, p, args[i]); err != nil {
			r.log.Error().Err(err).Str("callback", name).Int("param", i).Msg("cannot encode callback argument")
			return nil, false
		}
	}
	if b.Len() > protocol.MaxFrameSize {
		r.log.Error().Str("callback", name).Int("len", b.Len()).Msg("callback arguments exceed frame size")
		return nil, false
	}
	return b.Payload(), true
}

// Clear drops every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.calls = make(map[string][]ParamType)
	r.mu.Unlock()
}

func typeOf(v any) ParamType {
	switch v.(type) {
	case float32, float64:
		return Float
	case string:
		return String
	default:
		return Cell
	}
}

func encode(b *protocol.Builder, p ParamType, v any) error {
	switch p {
	case Cell:
		switch x := v.(type) {
		case int32:
			b.Int32(x)
		case int:
			b.Int32(int32(x))
		case bool:
			if x {
				b.Int32(1)
			} else {
				b.Int32(0)
			}
		case float32:
			b.Int32(int32(x))
		default:
			return fmt.Errorf("cell from %T", v)
		}
	case Float:
		switch x := v.(type) {
		case float32:
			b.Float32(x)
		case float64:
			b.Float32(float32(x))
		case int32:
			b.Float32(float32(x))
		default:
			return fmt.Errorf("float from %T", v)
		}
	case String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("string from %T", v)
		}
		b.CString(s)
	}
	return nil
}
