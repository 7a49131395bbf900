package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/metrics"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/transport"
)

const (
	handshakeInit  = "init"
	handshakeReply = "yes"
	handshakeStart = "start"
)

// Handler receives every decoded inspect message in arrival order. It runs
// on the session goroutine and should not block for long.
type Handler func(inspect.Message)

// InspectSession is a running inspect stream. It ends when Stop is called,
// when the context given to Inspect ends, or when the link goes away.
type InspectSession struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
	count   atomic.Uint64

	mu  sync.Mutex
	err error
}

// Stop ends the stream, waits for the link to be released and returns the
// session error, which is nil after a plain Stop.
func (s *InspectSession) Stop() error {
	s.stopped.Store(true)
	s.cancel()
	<-s.done
	return s.Err()
}

// Done is closed once the stream has ended and the link is closed.
func (s *InspectSession) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended: nil after Stop, the context error when
// the parent context ended, core.ErrTransportClosed when the link went away.
func (s *InspectSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Messages returns the number of messages decoded so far.
func (s *InspectSession) Messages() uint64 {
	return s.count.Load()
}

func (s *InspectSession) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Inspect opens the link, performs the handshake when enabled and starts
// streaming decoded messages to handler. It returns once the first message
// has been decoded; that message is returned and also delivered to
// handler. If no message arrives within the inspect timeout the stream is
// torn down and core.ErrTimeout is returned.
func (c *Client) Inspect(ctx context.Context, handler Handler) (*InspectSession, inspect.Message, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, inspect.Message{}, core.ErrLinkBusy
	}

	start := time.Now()
	sess, first, err := c.inspect(ctx, handler)
	metrics.ObserveSession(kindInspect, start, err)
	if err != nil {
		return nil, inspect.Message{}, fmt.Errorf("inspect: %w", err)
	}
	return sess, first, nil
}

// inspect releases the busy flag itself: directly on setup failures, from
// the stream goroutine once streaming has started.
func (c *Client) inspect(ctx context.Context, handler Handler) (*InspectSession, inspect.Message, error) {
	if err := c.link.Open(ctx); err != nil {
		c.busy.Store(false)
		return nil, inspect.Message{}, asKind(err, core.ErrTransportOpen)
	}

	chunks, release := transport.Queue(c.link, c.cfg.ChunkQueue)
	linkDone := transport.DoneOf(c.link)
	teardown := func() {
		release()
		c.closeLink()
	}

	if c.cfg.Handshake {
		if err := c.handshake(ctx, chunks, linkDone); err != nil {
			teardown()
			c.busy.Store(false)
			return nil, inspect.Message{}, err
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sess := &InspectSession{cancel: cancel, done: make(chan struct{})}
	first := make(chan inspect.Message, 1)

	go func() {
		defer close(sess.done)
		defer c.busy.Store(false)
		defer teardown()
		err := c.stream(streamCtx, sess, chunks, linkDone, handler, first)
		sess.finish(err)
		if err != nil {
			c.log.WithError(err).Info("inspect stream ended")
		} else {
			c.log.WithField("messages", sess.Messages()).Debug("inspect stream stopped")
		}
	}()

	msg, err := RunWithTimeout(ctx, c.cfg.InspectTimeout, func(ctx context.Context) (inspect.Message, error) {
		select {
		case m := <-first:
			return m, nil
		case <-sess.done:
			if err := sess.Err(); err != nil {
				return inspect.Message{}, err
			}
			return inspect.Message{}, core.ErrTransportClosed
		case <-ctx.Done():
			return inspect.Message{}, ctx.Err()
		}
	}, func(cause error) {
		c.log.WithError(cause).Debug("no inspect message before deadline")
	})
	if err != nil {
		sess.stopped.Store(true)
		cancel()
		<-sess.done
		return nil, inspect.Message{}, err
	}
	return sess, msg, nil
}

func (c *Client) stream(ctx context.Context, sess *InspectSession, chunks <-chan []byte, linkDone <-chan struct{}, handler Handler, first chan<- inspect.Message) error {
	dec := inspect.NewDecoder(c.cfg.Encoding)
	delivered := false

	for {
		select {
		case <-ctx.Done():
			if sess.stopped.Load() {
				return nil
			}
			return ctx.Err()
		case <-linkDone:
			return core.ErrTransportClosed
		case chunk := <-chunks:
			msgs, err := dec.Push(chunk)
			if err != nil {
				metrics.ObserveDecodeError(err)
				c.log.WithError(err).Warn("dropped undecodable inspect frames")
			}
			metrics.PayloadBytesTotal.WithLabelValues(kindInspect).Add(float64(len(chunk)))
			for _, m := range msgs {
				metrics.InspectMessagesTotal.WithLabelValues(metrics.CommandLabel(m.Command)).Inc()
				sess.count.Add(1)
				if !delivered {
					first <- m
					delivered = true
				}
				if handler != nil {
					handler(m)
				}
			}
		}
	}
}

// handshake writes init, waits for the yes reply and writes start.
func (c *Client) handshake(ctx context.Context, chunks <-chan []byte, linkDone <-chan struct{}) error {
	_, err := RunWithTimeout(ctx, c.cfg.HandshakeTimeout, func(ctx context.Context) (struct{}, error) {
		if err := c.link.Write(ctx, []byte(handshakeInit)); err != nil {
			return struct{}{}, asKind(err, core.ErrTransportWrite)
		}

		var buf []byte
		for {
			select {
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			case <-linkDone:
				return struct{}{}, core.ErrTransportClosed
			case chunk := <-chunks:
				buf = append(buf, chunk...)
				reply := strings.TrimSpace(string(buf))
				if reply == handshakeReply {
					if err := c.link.Write(ctx, []byte(handshakeStart)); err != nil {
						return struct{}{}, asKind(err, core.ErrTransportWrite)
					}
					return struct{}{}, nil
				}
				if !strings.HasPrefix(handshakeReply, reply) {
					return struct{}{}, fmt.Errorf("%w: got %q", core.ErrHandshake, reply)
				}
			}
		}
	}, nil)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	c.log.Debug("inspect handshake complete")
	return nil
}
