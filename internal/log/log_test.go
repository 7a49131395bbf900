package log

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/busctl/internal/config"
)

func TestGetLoggerBeforeInit(t *testing.T) {
	l := GetLogger()
	require.NotNil(t, l)
	assert.True(t, l.IsInfoEnabled())
}

func TestPatternFormatter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{
		Level:   "debug",
		Pattern: "[%level] %field %msg%n",
	}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"port": "/dev/ttyUSB0", "bytes": 8}).Debug("write")

	assert.Equal(t, "[DEBUG] bytes=8,port=/dev/ttyUSB0 write\n", buf.String())
}

func TestFormatterAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Pattern: "%msg"}, &buf)
	require.NoError(t, err)

	l.Info("one")
	l.Info("two")
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Pattern: "%field %msg"}, &buf)
	require.NoError(t, err)

	l.WithError(errors.New("boom")).Error("session failed")
	assert.Equal(t, "error=boom session failed\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "warn", Pattern: "%msg"}, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	assert.Equal(t, "shown\n", buf.String())
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())
}

func TestCallerWithoutReporting(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Pattern: "%caller %func %msg"}, &buf)
	require.NoError(t, err)

	l.Info("x")
	assert.Equal(t, "- - x\n", buf.String())
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitWithFileAppender(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "busctl.log")
	err := Init(config.LogConfig{
		Level:   "info",
		Pattern: "%msg",
		File: config.LogFileConfig{
			Enabled:  true,
			Filename: filename,
			MaxSize:  1,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		mu.Lock()
		logger = nil
		mu.Unlock()
	})

	GetLogger().Info("to file")
	assert.FileExists(t, filename)
}

func TestInitRequiresFilename(t *testing.T) {
	err := Init(config.LogConfig{Level: "info", File: config.LogFileConfig{Enabled: true}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "filename"))
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(&b)

	n, err := w.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", a.String())
	assert.Equal(t, "hi", b.String())
}
