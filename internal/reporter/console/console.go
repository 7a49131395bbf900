// Package console implements a reporter writing inspect messages to stdout.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/render"
	"firestige.xyz/busctl/internal/reporter"
)

// Name is the registry name of the console reporter.
const Name = "console"

// ConsoleReporter prints messages in text, json or yaml form.
type ConsoleReporter struct {
	format        render.Format
	out           io.Writer
	mu            sync.Mutex
	reportedCount atomic.Uint64
}

// New creates a console reporter writing to stdout.
func New() reporter.Reporter {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a console reporter writing to w.
func NewWithWriter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{format: render.FormatText, out: w}
}

func (r *ConsoleReporter) Name() string {
	return Name
}

// Init reads the optional "format" key.
func (r *ConsoleReporter) Init(config map[string]any) error {
	if config == nil {
		return nil
	}
	if v, ok := config["format"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("format must be a string, got %T", v)
		}
		f, err := render.ParseFormat(s)
		if err != nil {
			return err
		}
		r.format = f
	}
	return nil
}

func (r *ConsoleReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("format", string(r.format)).Debug("console reporter started")
	return nil
}

func (r *ConsoleReporter) Stop(ctx context.Context) error {
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Debug("console reporter stopped")
	return nil
}

// Report prints msg.
func (r *ConsoleReporter) Report(ctx context.Context, msg inspect.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := render.Message(r.out, r.format, msg); err != nil {
		return err
	}
	r.reportedCount.Add(1)
	return nil
}

// Flush is a no-op; writes are unbuffered.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}

// Reported returns the number of printed messages.
func (r *ConsoleReporter) Reported() uint64 {
	return r.reportedCount.Load()
}
