package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twarchive/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWithWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	child := log.WithField("account", "alice")
	child.WithFields(map[string]interface{}{"post_id": uint64(42), "took": time.Second}).Info("downloaded")
	log.Info("parent")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "downloaded", lines[0]["message"])
	assert.Equal(t, "alice", lines[0]["account"])
	assert.Equal(t, float64(42), lines[0]["post_id"])
	assert.Equal(t, "twarchive", lines[0]["app"])
	assert.NotContains(t, lines[1], "account", "child fields must not leak into the parent")
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	assert.Same(t, log, log.WithError(nil))
	log.WithError(errors.New("boom")).Error("failed")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "invalid"})
	assert.Error(t, err)
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("account", "bob").WithError(errors.New("x"))
	child.WarnWithFields("retrying", map[string]interface{}{"attempt": 2})
	tl.Info("plain")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "bob", msgs[0].Fields["account"])
	assert.Equal(t, 2, msgs[0].Fields["attempt"])
	assert.EqualError(t, msgs[0].Error, "x")
	assert.Nil(t, msgs[1].Fields)
	assert.True(t, tl.HasMessage("plain"))
	assert.False(t, tl.HasError())

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestLogDownloadLevels(t *testing.T) {
	tl := NewTestLogger()
	LogDownload(tl, "alice", 7, 0, "photo", false, nil)
	LogDownload(tl, "alice", 7, 1, "video", false, errors.New("gone"))

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, uint64(7), warns[0].Fields["post_id"])
}
