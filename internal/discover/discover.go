// Package discover finds which serial ports carry a bus gateway of a given
// module type by sending the discover request and reading the JSON reply.
package discover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/session"
	"firestige.xyz/busctl/internal/transport"
)

// Request is written to every candidate port.
const Request = "{\"discover\": {}}\r"

// Opener builds an unopened transport for a port name.
type Opener func(name string) (transport.Transport, error)

// Reply is the decoded discover answer: module type keys mapped to their
// raw JSON value.
type Reply map[string]json.RawMessage

// Types returns the reply's keys in sorted order.
func (r Reply) Types() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the reply carries moduleType, ignoring case.
func (r Reply) Has(moduleType string) bool {
	for k := range r {
		if strings.EqualFold(k, moduleType) {
			return true
		}
	}
	return false
}

// Result is the outcome of probing one port.
type Result struct {
	Port  string
	Reply Reply
	Err   error
}

// Prober sends the discover request to ports.
type Prober struct {
	open    Opener
	timeout time.Duration
	log     log.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds each probe. Default is 5s.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the prober logger.
func WithLogger(l log.Logger) Option {
	return func(p *Prober) {
		p.log = l
	}
}

// NewProber creates a prober that opens ports through open.
func NewProber(open Opener, opts ...Option) *Prober {
	p := &Prober{open: open, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = log.GetLogger()
	}
	p.log = p.log.WithField("component", "discover")
	return p
}

// Probe opens name, writes the discover request and decodes the first
// newline-terminated reply line. The port is always closed afterwards.
func (p *Prober) Probe(ctx context.Context, name string) (Reply, error) {
	link, err := p.open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransportOpen, err)
	}
	if err := link.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := link.Close(); err != nil {
			p.log.WithField("port", name).WithError(err).Debug("failed to close probed port")
		}
	}()

	chunks, release := transport.Queue(link, 16)
	defer release()
	linkDone := transport.DoneOf(link)

	line, err := session.RunWithTimeout(ctx, p.timeout, func(ctx context.Context) ([]byte, error) {
		if err := link.Write(ctx, []byte(Request)); err != nil {
			return nil, err
		}
		var buf []byte
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-linkDone:
				return nil, core.ErrTransportClosed
			case chunk := <-chunks:
				buf = append(buf, chunk...)
				if i := bytes.IndexByte(buf, '\n'); i >= 0 {
					return buf[:i], nil
				}
			}
		}
	}, func(cause error) {
		release()
	})
	if err != nil {
		return nil, err
	}

	var reply Reply
	if err := json.Unmarshal(bytes.TrimSpace(line), &reply); err != nil {
		return nil, core.NewDecodeError(core.StageDiscover, 0,
			fmt.Errorf("%w: %v", core.ErrUnparsableText, err))
	}
	return reply, nil
}

// ProbeAll probes every port concurrently. Results keep the order of
// ports.
func (p *Prober) ProbeAll(ctx context.Context, ports []string) []Result {
	results := make([]Result, len(ports))
	var wg sync.WaitGroup
	for i, name := range ports {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			reply, err := p.Probe(ctx, name)
			results[i] = Result{Port: name, Reply: reply, Err: err}
			if err != nil {
				p.log.WithField("port", name).WithError(err).Debug("discover probe failed")
			}
		}(i, name)
	}
	wg.Wait()
	return results
}

// Find returns the ports whose reply carries moduleType, in the order of
// ports. Ports that fail to answer are skipped.
func (p *Prober) Find(ctx context.Context, ports []string, moduleType string) []string {
	var found []string
	for _, r := range p.ProbeAll(ctx, ports) {
		if r.Err == nil && r.Reply.Has(moduleType) {
			found = append(found, r.Port)
		}
	}
	return found
}
