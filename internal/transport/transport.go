// Package transport defines the byte link the session layer talks through.
package transport

import (
	"context"
	"sync"
)

// Listener receives raw chunks in arrival order. Chunk boundaries carry no
// meaning relative to frame boundaries.
type Listener func(chunk []byte)

// Transport is a half-duplex byte link to the bus gateway.
//
// Subscribe installs the single active listener, replacing any previous
// one; the returned release func removes it and is safe to call more than
// once. A listener that has been released never sees another chunk from
// a later Subscribe.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	Write(ctx context.Context, p []byte) error
	Subscribe(l Listener) (release func())
}

// Notifier is implemented by transports that can report the end of their
// chunk stream, for example when the device is unplugged.
type Notifier interface {
	Done() <-chan struct{}
}

// DoneOf returns t's end-of-stream channel, or nil when t cannot report it.
func DoneOf(t Transport) <-chan struct{} {
	if n, ok := t.(Notifier); ok {
		return n.Done()
	}
	return nil
}

// Queue subscribes to t and forwards chunks into a channel of the given
// capacity. Delivery blocks the transport while the queue is full, which
// keeps chunk order. The release func unsubscribes and unblocks any pending
// delivery; chunks arriving afterwards are dropped.
func Queue(t Transport, size int) (<-chan []byte, func()) {
	ch := make(chan []byte, size)
	done := make(chan struct{})

	unsubscribe := t.Subscribe(func(chunk []byte) {
		select {
		case <-done:
			return
		default:
		}
		select {
		case ch <- chunk:
		case <-done:
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}
