package frame

import (
	"bytes"

	"firestige.xyz/busctl/internal/core"
)

// Frame is a header together with its fully reassembled payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// Synchronizer locates the marker in the chunk stream, parses the header
// and drives a Reassembler until the declared payload has arrived.
//
// A Synchronizer belongs to exactly one session and is not safe for
// concurrent use.
type Synchronizer struct {
	header   Header
	asm      *Reassembler
	consumed int
	// tail of the last noise chunk, kept so a marker split across chunks
	// is still found
	carry []byte
}

// NewSynchronizer returns a synchronizer waiting for a marker.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{}
}

// Synced reports whether a header has been matched and its payload is
// still being collected.
func (s *Synchronizer) Synced() bool {
	return s.asm != nil
}

// Header returns the header matched for the frame in progress.
func (s *Synchronizer) Header() Header {
	return s.header
}

// Remaining returns the payload bytes still expected, zero when not synced.
func (s *Synchronizer) Remaining() int {
	if s.asm == nil {
		return 0
	}
	return s.asm.Remaining()
}

// Push feeds one chunk. It returns a non-nil Frame once the payload is
// complete. Chunks seen before synchronization that carry no marker are
// discarded as line noise, except for their last MarkerLen-1 bytes which
// may start a marker completed by the next chunk. The header must follow
// the marker in the chunk that completes it. Once synchronized every chunk
// is payload continuation; the marker is not searched for again until the
// frame completes.
func (s *Synchronizer) Push(chunk []byte) (*Frame, error) {
	base := s.consumed
	s.consumed += len(chunk)

	if s.asm == nil {
		if len(s.carry) > 0 {
			base -= len(s.carry)
			chunk = append(s.carry, chunk...)
			s.carry = nil
		}
		idx := bytes.Index(chunk, marker)
		if idx < 0 {
			keep := min(len(chunk), MarkerLen-1)
			s.carry = append([]byte(nil), chunk[len(chunk)-keep:]...)
			return nil, nil
		}
		body := chunk[idx+MarkerLen:]
		h, err := ParseHeader(body)
		if err != nil {
			return nil, core.NewDecodeError(core.StageSync, base+idx, err)
		}
		s.header = h
		s.asm = NewReassembler(int(h.Size))
		chunk = body[HeaderLen:]
		base += idx + MarkerLen + HeaderLen
	}

	complete, err := s.asm.Add(chunk)
	if err != nil {
		s.asm = nil
		return nil, core.NewDecodeError(core.StageReassembly, base, err)
	}
	if !complete {
		return nil, nil
	}

	f := &Frame{Header: s.header, Payload: s.asm.Payload()}
	s.asm = nil
	return f, nil
}
