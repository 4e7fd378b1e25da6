package bridge

import (
	"sync"

	"github.com/gaspardpetit/gmbridge/internal/protocol"
)

var replyPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, protocol.MaxFrameSize)
		return &b
	},
}

// Reply owns the payload of an unclaimed command. The holder must call
// Release once it is done; further calls are no-ops.
type Reply struct {
	buf *[]byte
}

// newReply copies payload into a pooled buffer. Empty payloads produce no
// reply.
func newReply(payload []byte) *Reply {
	if len(payload) == 0 {
		return nil
	}
	b := replyPool.Get().(*[]byte)
	*b = append((*b)[:0], payload...)
	return &Reply{buf: b}
}

// Bytes returns the payload. It must not be used after Release.
func (r *Reply) Bytes() []byte {
	if r == nil || r.buf == nil {
		return nil
	}
	return *r.buf
}

// Len returns the payload length, zero for a nil or released reply.
func (r *Reply) Len() int {
	return len(r.Bytes())
}

// Release returns the buffer to the pool.
func (r *Reply) Release() {
	if r == nil || r.buf == nil {
		return
	}
	b := r.buf
	r.buf = nil
	*b = (*b)[:0]
	replyPool.Put(b)
}
