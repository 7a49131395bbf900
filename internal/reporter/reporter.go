// Package reporter forwards decoded inspect messages to external sinks.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/metrics"
	"firestige.xyz/busctl/internal/protocol/inspect"
)

// Reporter sends inspect messages to an external system.
type Reporter interface {
	Name() string
	Init(config map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Report(ctx context.Context, msg inspect.Message) error
	Flush(ctx context.Context) error
}

// Factory creates an uninitialized reporter.
type Factory func() Reporter

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a reporter available by name.
func Register(name string, f Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("reporter %q already registered", name)
	}
	factories[name] = f
	return nil
}

// New creates the reporter registered under name.
func New(name string) (Reporter, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown reporter %q", name)
	}
	return f(), nil
}

// Names lists registered reporters.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Fanout delivers every message to each of its reporters. A failing
// reporter does not stop delivery to the others.
type Fanout struct {
	reporters []Reporter
	log       log.Logger
}

// NewFanout wraps already initialized reporters.
func NewFanout(reporters ...Reporter) *Fanout {
	return &Fanout{
		reporters: reporters,
		log:       log.GetLogger().WithField("component", "reporter"),
	}
}

// Build creates and initializes the enabled reporters in cfgs.
func Build(cfgs []config.ReporterConfig) (*Fanout, error) {
	reporters := make([]Reporter, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		r, err := New(c.Name)
		if err != nil {
			return nil, err
		}
		if err := r.Init(c.Config); err != nil {
			return nil, fmt.Errorf("init reporter %s: %w", c.Name, err)
		}
		reporters = append(reporters, r)
	}
	return NewFanout(reporters...), nil
}

// Reporters returns the wrapped reporters.
func (f *Fanout) Reporters() []Reporter {
	return f.reporters
}

// Start starts every reporter, stopping the ones already started if one
// fails.
func (f *Fanout) Start(ctx context.Context) error {
	for i, r := range f.reporters {
		if err := r.Start(ctx); err != nil {
			for _, started := range f.reporters[:i] {
				_ = started.Stop(ctx)
			}
			return fmt.Errorf("start reporter %s: %w", r.Name(), err)
		}
	}
	return nil
}

// Report sends msg to all reporters and joins their errors.
func (f *Fanout) Report(ctx context.Context, msg inspect.Message) error {
	var errs []error
	for _, r := range f.reporters {
		if err := r.Report(ctx, msg); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Inc()
			f.log.WithField("reporter", r.Name()).WithError(err).Warn("report failed")
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stop flushes and stops every reporter.
func (f *Fanout) Stop(ctx context.Context) error {
	var errs []error
	for _, r := range f.reporters {
		if err := r.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", r.Name(), err))
		}
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}
