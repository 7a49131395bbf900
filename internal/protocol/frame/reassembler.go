package frame

import (
	"fmt"

	"firestige.xyz/busctl/internal/core"
)

// Reassembler accumulates payload bytes until the declared size is reached.
// The buffer only grows and the remaining counter only shrinks, so chunks
// must be added in arrival order.
type Reassembler struct {
	buf       []byte
	declared  int
	remaining int
}

// NewReassembler creates a reassembler expecting size payload bytes.
// A zero size is complete before any bytes are added.
func NewReassembler(size int) *Reassembler {
	return &Reassembler{
		buf:       make([]byte, 0, size),
		declared:  size,
		remaining: size,
	}
}

// Add appends p and reports whether the payload is complete. Receiving more
// bytes than declared returns ErrOverDelivery and leaves the buffer as it was.
func (r *Reassembler) Add(p []byte) (bool, error) {
	if len(p) > r.remaining {
		return false, fmt.Errorf("%w: declared %d bytes, received %d",
			core.ErrOverDelivery, r.declared, r.declared-r.remaining+len(p))
	}
	r.buf = append(r.buf, p...)
	r.remaining -= len(p)
	return r.remaining == 0, nil
}

// Complete reports whether all declared bytes have arrived.
func (r *Reassembler) Complete() bool {
	return r.remaining == 0
}

// Remaining returns the number of bytes still expected.
func (r *Reassembler) Remaining() int {
	return r.remaining
}

// Payload returns the bytes accumulated so far.
func (r *Reassembler) Payload() []byte {
	return r.buf
}
