package redisserver

const (
	// InitialOutputSize is the capacity of a fresh output buffer.
	InitialOutputSize = 16 * 1024

	// DefaultMaxOutputSize is the output ceiling when none is configured.
	DefaultMaxOutputSize = 128 * 1024 * 1024
)

// overflowReply replaces the buffered replies when they outgrow the ceiling.
var overflowReply = []byte("-ERR buf is too large\r\n")

// OutputBuffer accumulates replies for one connection until they are
// flushed. It grows by doubling up to a hard ceiling.
type OutputBuffer struct {
	buf   []byte
	max   int
	ready bool
}

// NewOutputBuffer creates a buffer with the given ceiling; max <= 0 uses
// DefaultMaxOutputSize.
func NewOutputBuffer(max int) *OutputBuffer {
	if max <= 0 {
		max = DefaultMaxOutputSize
	}
	size := InitialOutputSize
	if size > max {
		size = max
	}
	return &OutputBuffer{buf: make([]byte, 0, size), max: max}
}

// Append adds p and marks the buffer ready to flush. When p does not fit
// under the ceiling the buffer is replaced by the canned overflow error and
// Append returns false.
func (o *OutputBuffer) Append(p []byte) bool {
	o.ready = true
	if cap(o.buf)-len(o.buf) <= len(p) {
		size := cap(o.buf)
		if size == 0 {
			size = InitialOutputSize
		}
		for size-len(o.buf) <= len(p) {
			if size > o.max/2 {
				o.buf = append(o.buf[:0], overflowReply...)
				return false
			}
			size *= 2
		}
		grown := make([]byte, len(o.buf), size)
		copy(grown, o.buf)
		o.buf = grown
	}
	o.buf = append(o.buf, p...)
	return true
}

func (o *OutputBuffer) Bytes() []byte { return o.buf }
func (o *OutputBuffer) Len() int      { return len(o.buf) }
func (o *OutputBuffer) Ready() bool   { return o.ready }

// Reset empties the buffer after a flush and keeps its capacity.
func (o *OutputBuffer) Reset() {
	o.buf = o.buf[:0]
	o.ready = false
}
