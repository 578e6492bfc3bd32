package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewWithWriterTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "hub", "info")

	log.Debug("hidden")
	log.Info("connection opened", slog.String("conn_id", "c1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hub", entry["logger"])
	assert.Equal(t, "c1", entry["conn_id"])
	assert.Equal(t, "connection opened", entry["msg"])
}
