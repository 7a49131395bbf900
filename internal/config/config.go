// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config maps to the `busctl:` root key in YAML.
type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Serial    SerialConfig     `mapstructure:"serial"`
	Session   SessionConfig    `mapstructure:"session"`
	Inspect   InspectConfig    `mapstructure:"inspect"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Reporters []ReporterConfig `mapstructure:"reporters"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level        string        `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern      string        `mapstructure:"pattern"` // e.g. "%time [%level] %field %msg%n"
	Time         string        `mapstructure:"time"`    // Go time layout
	ReportCaller bool          `mapstructure:"report_caller"`
	File         LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating file output.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // Days
	Compress   bool   `mapstructure:"compress"`
}

// SerialConfig holds the line settings handed to the serial transport.
type SerialConfig struct {
	BaudRate   int    `mapstructure:"baud_rate"`
	DataBits   int    `mapstructure:"data_bits"`
	StopBits   int    `mapstructure:"stop_bits"` // 1 | 2
	Parity     string `mapstructure:"parity"`    // none | odd | even | mark | space
	ReadBuffer int    `mapstructure:"read_buffer"`
}

// SessionConfig bounds each request/response cycle.
type SessionConfig struct {
	TableTimeout     time.Duration `mapstructure:"table_timeout"`
	InspectTimeout   time.Duration `mapstructure:"inspect_timeout"` // 0 = wait forever for the first frame
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	DiscoverTimeout  time.Duration `mapstructure:"discover_timeout"`
}

// InspectConfig controls the passive traffic stream.
type InspectConfig struct {
	Encoding   string `mapstructure:"encoding"` // hex | binary
	Handshake  bool   `mapstructure:"handshake"`
	ChunkQueue int    `mapstructure:"chunk_queue"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ReporterConfig selects a registered reporter by name. Config is decoded
// by the reporter itself.
type ReporterConfig struct {
	Name    string         `mapstructure:"name"`
	Enabled bool           `mapstructure:"enabled"`
	Config  map[string]any `mapstructure:"config"`
}

// configRoot is the top-level wrapper matching the YAML structure `busctl: ...`.
type configRoot struct {
	Busctl Config `mapstructure:"busctl"`
}

// Load reads the configuration file at path. An empty path yields the
// defaults. Env vars override file values through the key replacer, e.g.
// BUSCTL_SERIAL_BAUD_RATE for busctl.serial.baud_rate.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Busctl

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values. All keys carry the "busctl." prefix.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("busctl.log.level", "info")
	v.SetDefault("busctl.log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault("busctl.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("busctl.log.report_caller", false)
	v.SetDefault("busctl.log.file.enabled", false)
	v.SetDefault("busctl.log.file.filename", "busctl.log")
	v.SetDefault("busctl.log.file.max_size", 100)
	v.SetDefault("busctl.log.file.max_backups", 5)
	v.SetDefault("busctl.log.file.max_age", 30)
	v.SetDefault("busctl.log.file.compress", true)

	// Serial defaults match the gateway firmware
	v.SetDefault("busctl.serial.baud_rate", 1000000)
	v.SetDefault("busctl.serial.data_bits", 8)
	v.SetDefault("busctl.serial.stop_bits", 1)
	v.SetDefault("busctl.serial.parity", "none")
	v.SetDefault("busctl.serial.read_buffer", 4096)

	// Session defaults
	v.SetDefault("busctl.session.table_timeout", "5s")
	v.SetDefault("busctl.session.inspect_timeout", "5s")
	v.SetDefault("busctl.session.handshake_timeout", "5s")
	v.SetDefault("busctl.session.discover_timeout", "5s")

	// Inspect defaults
	v.SetDefault("busctl.inspect.encoding", "hex")
	v.SetDefault("busctl.inspect.handshake", true)
	v.SetDefault("busctl.inspect.chunk_queue", 256)

	// Metrics defaults
	v.SetDefault("busctl.metrics.enabled", false)
	v.SetDefault("busctl.metrics.listen", ":9091")
	v.SetDefault("busctl.metrics.path", "/metrics")

	// Reporter defaults
	v.SetDefault("busctl.reporters", []map[string]any{
		{"name": "console", "enabled": true, "config": map[string]any{"format": "text"}},
	})
}

// ValidateAndApplyDefaults validates configuration and fills in values
// that cannot be expressed as viper defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Filename == "" {
		return fmt.Errorf("log.file.filename is required when log.file.enabled=true")
	}

	// ── Serial validation ──
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid serial.baud_rate: %d", cfg.Serial.BaudRate)
	}
	if cfg.Serial.DataBits < 5 || cfg.Serial.DataBits > 8 {
		return fmt.Errorf("invalid serial.data_bits: %d (must be 5..8)", cfg.Serial.DataBits)
	}
	if cfg.Serial.StopBits != 1 && cfg.Serial.StopBits != 2 {
		return fmt.Errorf("invalid serial.stop_bits: %d (must be 1 or 2)", cfg.Serial.StopBits)
	}
	cfg.Serial.Parity = strings.ToLower(cfg.Serial.Parity)
	switch cfg.Serial.Parity {
	case "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("invalid serial.parity: %s (must be none/odd/even/mark/space)", cfg.Serial.Parity)
	}
	if cfg.Serial.ReadBuffer <= 0 {
		cfg.Serial.ReadBuffer = 4096
	}

	// ── Session validation ──
	if cfg.Session.TableTimeout <= 0 {
		return fmt.Errorf("session.table_timeout must be positive, got %s", cfg.Session.TableTimeout)
	}
	if cfg.Session.InspectTimeout < 0 {
		return fmt.Errorf("session.inspect_timeout must not be negative, got %s", cfg.Session.InspectTimeout)
	}
	if cfg.Session.HandshakeTimeout <= 0 {
		return fmt.Errorf("session.handshake_timeout must be positive, got %s", cfg.Session.HandshakeTimeout)
	}
	if cfg.Session.DiscoverTimeout <= 0 {
		return fmt.Errorf("session.discover_timeout must be positive, got %s", cfg.Session.DiscoverTimeout)
	}

	// ── Inspect validation ──
	cfg.Inspect.Encoding = strings.ToLower(cfg.Inspect.Encoding)
	switch cfg.Inspect.Encoding {
	case "", "hex":
		cfg.Inspect.Encoding = "hex"
	case "binary", "raw":
	default:
		return fmt.Errorf("invalid inspect.encoding: %s (must be hex/binary)", cfg.Inspect.Encoding)
	}
	if cfg.Inspect.ChunkQueue <= 0 {
		cfg.Inspect.ChunkQueue = 256
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Reporter validation ──
	seen := make(map[string]bool, len(cfg.Reporters))
	for i, r := range cfg.Reporters {
		if r.Name == "" {
			return fmt.Errorf("reporters[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("reporters[%d]: duplicate reporter %q", i, r.Name)
		}
		seen[r.Name] = true
	}

	return nil
}

// EnabledReporters returns the reporters with enabled=true.
func (cfg *Config) EnabledReporters() []ReporterConfig {
	out := make([]ReporterConfig, 0, len(cfg.Reporters))
	for _, r := range cfg.Reporters {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}
