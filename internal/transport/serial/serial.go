// Package serial adapts a go.bug.st/serial port to transport.Transport.
package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bugserial "go.bug.st/serial"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/transport"
)

// pollInterval bounds how long a read blocks so Close is noticed.
const pollInterval = 100 * time.Millisecond

// Port is a serial device exposed as a transport.Transport. A single
// reader goroutine dispatches chunks to the current listener, so chunks
// are delivered strictly in arrival order.
type Port struct {
	name    string
	mode    *bugserial.Mode
	readBuf int
	log     log.Logger

	mu       sync.Mutex
	port     bugserial.Port
	listener transport.Listener
	gen      uint64
	done     chan struct{}
}

// New creates a closed Port for the named device.
func New(name string, cfg config.SerialConfig) (*Port, error) {
	mode, err := Mode(cfg)
	if err != nil {
		return nil, err
	}
	readBuf := cfg.ReadBuffer
	if readBuf <= 0 {
		readBuf = 4096
	}
	return &Port{
		name:    name,
		mode:    mode,
		readBuf: readBuf,
		log:     log.GetLogger().WithField("port", name),
	}, nil
}

// Mode converts the serial section of the configuration.
func Mode(cfg config.SerialConfig) (*bugserial.Mode, error) {
	m := &bugserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.StopBits {
	case 1:
		m.StopBits = bugserial.OneStopBit
	case 2:
		m.StopBits = bugserial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", cfg.StopBits)
	}
	switch cfg.Parity {
	case "none", "":
		m.Parity = bugserial.NoParity
	case "odd":
		m.Parity = bugserial.OddParity
	case "even":
		m.Parity = bugserial.EvenParity
	case "mark":
		m.Parity = bugserial.MarkParity
	case "space":
		m.Parity = bugserial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", cfg.Parity)
	}
	return m, nil
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Open opens the device and starts the reader goroutine.
func (p *Port) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// a reader from an earlier open may still be draining after Close
	p.mu.Lock()
	prev := p.done
	isOpen := p.port != nil
	p.mu.Unlock()
	if !isOpen && prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		return fmt.Errorf("%w: %s already open", core.ErrTransportOpen, p.name)
	}

	sp, err := bugserial.Open(p.name, p.mode)
	if err != nil {
		p.log.WithError(err).Debug("can't open serial port")
		return fmt.Errorf("%w: %s: %v", core.ErrTransportOpen, p.name, err)
	}
	if err := sp.SetReadTimeout(pollInterval); err != nil {
		sp.Close()
		return fmt.Errorf("%w: %s: set read timeout: %v", core.ErrTransportOpen, p.name, err)
	}

	p.port = sp
	p.done = make(chan struct{})
	go p.readLoop(sp, p.done)

	p.log.Debug("serial port opened")
	return nil
}

// Close closes the device and waits for its reader goroutine to exit, so
// no chunk read on this handle reaches a later listener. Closing a closed
// port is a no-op. Close must not be called from a listener.
func (p *Port) Close() error {
	p.mu.Lock()
	sp := p.port
	done := p.done
	p.port = nil
	p.mu.Unlock()

	if sp == nil {
		return nil
	}
	err := sp.Close()
	if done != nil {
		<-done
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", p.name, err)
	}
	p.log.Debug("serial port closed")
	return nil
}

// Write flushes unread input and writes b in full.
func (p *Port) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	sp := p.port
	p.mu.Unlock()
	if sp == nil {
		return fmt.Errorf("%w: %s is not open", core.ErrTransportWrite, p.name)
	}

	if err := sp.ResetInputBuffer(); err != nil {
		p.log.WithError(err).Warn("can't flush serial input")
	}
	for len(b) > 0 {
		n, err := sp.Write(b)
		if err != nil {
			p.log.WithError(err).Error("can't write on serial port")
			return fmt.Errorf("%w: %s: %v", core.ErrTransportWrite, p.name, err)
		}
		b = b[n:]
	}
	return nil
}

// Subscribe installs l as the only listener.
func (p *Port) Subscribe(l transport.Listener) func() {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.listener = l
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		if p.gen == gen {
			p.listener = nil
		}
		p.mu.Unlock()
	}
}

// Done is closed when the reader goroutine of the current open exits.
func (p *Port) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Port) readLoop(sp bugserial.Port, done chan struct{}) {
	defer close(done)

	buf := make([]byte, p.readBuf)
	for {
		n, err := sp.Read(buf)
		if err != nil {
			var perr *bugserial.PortError
			if errors.As(err, &perr) && perr.Code() == bugserial.PortClosed {
				return
			}
			p.log.WithError(err).Warn("serial read failed")
			return
		}

		// a handle that is no longer current delivers nothing
		p.mu.Lock()
		owner := p.port == sp
		l := p.listener
		p.mu.Unlock()
		if !owner {
			return
		}
		if n == 0 || l == nil {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		l(chunk)
	}
}
