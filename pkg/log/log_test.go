package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	original := GetLogger()
	t.Cleanup(func() { SetLogger(original) })

	var buf bytes.Buffer
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(&buf)
	SetLogger(l)
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInit(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	t.Run("JSONFormat", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: "stdout"}))
		_, ok := GetLogger().Formatter.(*logrus.JSONFormatter)
		assert.True(t, ok)
		assert.Equal(t, logrus.DebugLevel, GetLogger().Level)
	})

	t.Run("TextFormat", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "warn", Format: "text", Output: "stdout"}))
		_, ok := GetLogger().Formatter.(*logrus.TextFormatter)
		assert.True(t, ok)
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "invalid", Format: "text"}))
		assert.Equal(t, logrus.InfoLevel, GetLogger().Level)
	})

	t.Run("FileOutput", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "app.log")
		require.NoError(t, Init(Config{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			Filename:   logFile,
			MaxSize:    10,
			MaxAge:     7,
			MaxBackups: 3,
		}))

		Info("written to file")

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "written to file")
	})
}

func TestLevelFiltering(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "error", Format: "text"}))
	GetLogger().SetOutput(&buf)

	Info("info message")
	Warn("warn message")
	assert.Empty(t, strings.TrimSpace(buf.String()))

	Errorf("error %d", 500)
	assert.Contains(t, buf.String(), "error 500")
}

func TestFields(t *testing.T) {
	t.Run("WithFields", func(t *testing.T) {
		buf := captureJSON(t)
		WithFields(logrus.Fields{"user_id": 7, "action": "checkout"}).Info("purchase done")

		entry := decode(t, buf)
		assert.Equal(t, "purchase done", entry["msg"])
		assert.Equal(t, float64(7), entry["user_id"])
		assert.Equal(t, "checkout", entry["action"])
	})

	t.Run("WithError", func(t *testing.T) {
		buf := captureJSON(t)
		WithError(assert.AnError).Error("operation failed")

		entry := decode(t, buf)
		assert.Equal(t, assert.AnError.Error(), entry["error"])
	})
}

func TestContextFields(t *testing.T) {
	buf := captureJSON(t)

	ctx := NewContext(context.Background(), logrus.Fields{"request_id": "req-1"})
	ctx = NewContext(ctx, logrus.Fields{"user_id": 3})
	WithContext(ctx).Info("scoped")

	entry := decode(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(3), entry["user_id"])

	buf.Reset()
	WithContext(context.Background()).Info("bare")
	entry = decode(t, buf)
	assert.NotContains(t, entry, "request_id")
}
