package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestComponentTagsRecords(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	SetLogger(New(&buf, "DEBUG"))

	Component("session").Debug("refreshed", "result", "success")
	Warn("lock busy")

	out := buf.String()
	assert.Contains(t, out, "component=session")
	assert.Contains(t, out, "result=success")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="lock busy"`)
}
