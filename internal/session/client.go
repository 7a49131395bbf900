// Package session runs request/response cycles against the bus gateway
// over a transport.Transport: routing table retrieval and live traffic
// inspection.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/metrics"
	"firestige.xyz/busctl/internal/protocol/frame"
	"firestige.xyz/busctl/internal/protocol/rtb"
	"firestige.xyz/busctl/internal/transport"
)

const (
	kindTable   = "rtb"
	kindInspect = "inspect"
)

// Client owns one link. It allows a single active session at a time;
// a second concurrent request fails with core.ErrLinkBusy.
type Client struct {
	link transport.Transport
	cfg  Config
	log  log.Logger
	busy atomic.Bool
}

// NewClient creates a client for link.
func NewClient(link transport.Transport, opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	if cfg.ChunkQueue <= 0 {
		cfg.ChunkQueue = DefaultConfig().ChunkQueue
	}
	return &Client{
		link: link,
		cfg:  cfg,
		log:  logger.WithField("component", "session"),
	}
}

// Busy reports whether a session is active on the link.
func (c *Client) Busy() bool {
	return c.busy.Load()
}

// RoutingTable opens the link, sends the table request and decodes the
// first complete frame as a routing table. The link is closed and the
// listener released on every return path.
func (c *Client) RoutingTable(ctx context.Context) (*rtb.Table, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, core.ErrLinkBusy
	}
	defer c.busy.Store(false)

	start := time.Now()
	table, err := c.routingTable(ctx)
	metrics.ObserveSession(kindTable, start, err)
	if err != nil {
		return nil, fmt.Errorf("routing table: %w", err)
	}

	c.log.WithFields(map[string]interface{}{
		"nodes":    len(table.Nodes),
		"services": table.ServiceCount(),
		"elapsed":  time.Since(start).String(),
	}).Debug("routing table decoded")
	return table, nil
}

// routingTable runs the whole open, request and response cycle under
// TableTimeout. It returns only after the operation goroutine has released
// the listener and closed the link.
func (c *Client) routingTable(ctx context.Context) (*rtb.Table, error) {
	opDone := make(chan struct{})
	defer func() { <-opDone }()

	return RunWithTimeout(ctx, c.cfg.TableTimeout, func(ctx context.Context) (*rtb.Table, error) {
		defer close(opDone)

		if err := c.link.Open(ctx); err != nil {
			return nil, asKind(err, core.ErrTransportOpen)
		}
		defer c.closeLink()

		chunks, release := transport.Queue(c.link, c.cfg.ChunkQueue)
		defer release()
		linkDone := transport.DoneOf(c.link)

		if err := c.link.Write(ctx, frame.TableRequest()); err != nil {
			return nil, asKind(err, core.ErrTransportWrite)
		}

		syncer := frame.NewSynchronizer()
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-linkDone:
				return nil, core.ErrTransportClosed
			case chunk := <-chunks:
				if c.log.IsTraceEnabled() {
					c.log.Tracef("rx % X", chunk)
				}
				f, err := syncer.Push(chunk)
				if err != nil {
					return nil, err
				}
				if f == nil {
					continue
				}
				metrics.FramesSyncedTotal.WithLabelValues(metrics.CommandLabel(f.Header.Command)).Inc()
				metrics.PayloadBytesTotal.WithLabelValues(kindTable).Add(float64(len(f.Payload)))
				if f.Header.Command != frame.CommandRoutingTable {
					c.log.WithField("command", metrics.CommandLabel(f.Header.Command)).
						Warn("unexpected command in routing table response")
				}
				return rtb.Decode(f.Header, f.Payload)
			}
		}
	}, func(cause error) {
		c.log.WithError(cause).Debug("routing table request abandoned")
	})
}

func (c *Client) closeLink() {
	if err := c.link.Close(); err != nil {
		c.log.WithError(err).Warn("failed to close link")
	}
}

// asKind makes sure err matches sentinel with errors.Is.
func asKind(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
