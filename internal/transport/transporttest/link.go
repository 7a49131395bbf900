// Package transporttest provides an in-memory transport.Transport that
// plays the part of the bus gateway in tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/transport"
)

// Responder returns the chunks the simulated device sends back after a
// write. Returning nil sends nothing.
type Responder func(written []byte) [][]byte

// Link is a simulated half-duplex link. Chunks are delivered by one
// goroutine in the order they were queued.
type Link struct {
	// OpenErr and WriteErr, when set, make Open and Write fail.
	OpenErr  error
	WriteErr error
	// OpenDelay makes Open block, honouring ctx, before it succeeds.
	OpenDelay time.Duration

	respond Responder

	mu       sync.Mutex
	opened   int
	closed   int
	isOpen   bool
	writes   [][]byte
	listener transport.Listener
	gen      uint64
	queue    chan []byte
	stop     chan struct{}
	done     chan struct{}
}

// NewLink creates a link answering writes with respond.
func NewLink(respond Responder) *Link {
	return &Link{respond: respond}
}

func (l *Link) Open(ctx context.Context) error {
	if l.OpenErr != nil {
		return fmt.Errorf("%w: %v", core.ErrTransportOpen, l.OpenErr)
	}
	if l.OpenDelay > 0 {
		select {
		case <-time.After(l.OpenDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isOpen {
		return fmt.Errorf("%w: already open", core.ErrTransportOpen)
	}
	l.opened++
	l.isOpen = true
	l.queue = make(chan []byte, 1024)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.pump(l.queue, l.stop, l.done)
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.isOpen {
		return nil
	}
	l.closed++
	l.isOpen = false
	close(l.stop)
	return nil
}

func (l *Link) Write(ctx context.Context, p []byte) error {
	if l.WriteErr != nil {
		return fmt.Errorf("%w: %v", core.ErrTransportWrite, l.WriteErr)
	}
	l.mu.Lock()
	if !l.isOpen {
		l.mu.Unlock()
		return fmt.Errorf("%w: link is not open", core.ErrTransportWrite)
	}
	l.writes = append(l.writes, append([]byte(nil), p...))
	l.mu.Unlock()

	if l.respond != nil {
		l.Feed(l.respond(p)...)
	}
	return nil
}

func (l *Link) Subscribe(fn transport.Listener) func() {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.listener = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		if l.gen == gen {
			l.listener = nil
		}
		l.mu.Unlock()
	}
}

// Done is closed when the link is closed.
func (l *Link) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Feed queues chunks as if the device had sent them. It is a no-op on a
// closed link.
func (l *Link) Feed(chunks ...[]byte) {
	l.mu.Lock()
	q, stop := l.queue, l.stop
	open := l.isOpen
	l.mu.Unlock()
	if !open {
		return
	}
	for _, c := range chunks {
		select {
		case q <- c:
		case <-stop:
			return
		}
	}
}

// Writes returns a copy of everything written so far.
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

// Listening reports whether a listener is installed.
func (l *Link) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener != nil
}

// Counts returns how many times the link was opened and closed.
func (l *Link) Counts() (opened, closed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened, l.closed
}

func (l *Link) pump(queue chan []byte, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case chunk := <-queue:
			l.mu.Lock()
			fn := l.listener
			l.mu.Unlock()
			if fn != nil {
				fn(chunk)
			}
		}
	}
}

// Split cuts b into chunks of at most n bytes.
func Split(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}
