// Package log provides the process-wide logger: logrus behind a small
// interface, a pattern formatter and stdout plus rotating file output.
package log

import (
	"fmt"
	"sync"

	"firestige.xyz/busctl/internal/config"
)

type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
)

// GetLogger returns the process logger. Before Init it returns an info
// level logger writing to stdout.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newDefault()
	}
	return logger
}

// Init replaces the process logger according to cfg.
func Init(cfg config.LogConfig) error {
	l, err := initByConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}
