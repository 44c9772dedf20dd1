package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "info")

	log.Info("login", "username", "s1", "password", "hunter2", "refresh_token", "abc.def.ghi")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "s1", line["username"])
	assert.Equal(t, "[REDACTED]", line["password"])
	assert.Equal(t, "[REDACTED]", line["refresh_token"])
}

func TestPrettyLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", "debug")

	log.With("Authorization", "Bearer xyz").Debug("request", "path", "/api/v1/auth/me")

	out := buf.String()
	assert.Contains(t, out, "request")
	assert.Contains(t, out, "/api/v1/auth/me")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "Bearer xyz")
}

func TestPrettyLoggerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", "info")

	log.WithGroup("db").Info("connected", slog.Group("pool", "max", 10))

	assert.Contains(t, buf.String(), "db.pool.max")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))

	var buf bytes.Buffer
	New(&buf, "pretty", "warn").Info("hidden")
	assert.Empty(t, buf.String())
}
