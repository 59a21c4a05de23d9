package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Info("Pusher", "dropped %d", 1)
	l.Warn("Pusher", "kept %s", "warn")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "component=Pusher")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
