package session

import (
	"time"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/protocol/inspect"
)

// Config holds the client configuration.
type Config struct {
	// TableTimeout bounds one routing table request/response cycle
	TableTimeout time.Duration

	// InspectTimeout bounds the wait for the first inspect message; zero waits forever
	InspectTimeout time.Duration

	// HandshakeTimeout bounds the init/yes exchange before inspecting
	HandshakeTimeout time.Duration

	// Handshake enables the init/yes/start exchange before inspecting
	Handshake bool

	// Encoding is the inspect frame encoding on the wire
	Encoding inspect.Encoding

	// ChunkQueue is the capacity of the chunk channel between the transport and the decoder
	ChunkQueue int

	// Logger is used for session logging (optional)
	Logger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TableTimeout:     5 * time.Second,
		InspectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		Handshake:        true,
		Encoding:         inspect.EncodingHex,
		ChunkQueue:       256,
	}
}

// ConfigFrom maps the loaded configuration onto a client Config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	enc, err := inspect.ParseEncoding(cfg.Inspect.Encoding)
	if err != nil {
		return Config{}, err
	}
	c := DefaultConfig()
	c.TableTimeout = cfg.Session.TableTimeout
	c.InspectTimeout = cfg.Session.InspectTimeout
	c.HandshakeTimeout = cfg.Session.HandshakeTimeout
	c.Handshake = cfg.Inspect.Handshake
	c.Encoding = enc
	if cfg.Inspect.ChunkQueue > 0 {
		c.ChunkQueue = cfg.Inspect.ChunkQueue
	}
	return c, nil
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		logger := c.Logger
		*c = cfg
		if c.Logger == nil {
			c.Logger = logger
		}
	}
}

// WithLogger sets a logger for session operations.
func WithLogger(logger log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTableTimeout sets the routing table timeout.
//
// Example:
//
//	client := session.NewClient(link, session.WithTableTimeout(2*time.Second))
func WithTableTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.TableTimeout = timeout
	}
}

// WithInspectTimeout sets how long Inspect waits for the first message.
func WithInspectTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.InspectTimeout = timeout
		}
	}
}

// WithHandshake enables or disables the inspect handshake.
// Default is true.
func WithHandshake(enabled bool) Option {
	return func(c *Config) {
		c.Handshake = enabled
	}
}

// WithHandshakeTimeout sets the handshake timeout.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = timeout
	}
}

// WithEncoding sets the inspect frame encoding.
func WithEncoding(enc inspect.Encoding) Option {
	return func(c *Config) {
		c.Encoding = enc
	}
}

// WithChunkQueue sets the chunk channel capacity.
func WithChunkQueue(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkQueue = size
		}
	}
}
