package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and returns a cleanup
// function restoring the previous settings.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	prevOutput, prevColor := output, useColor
	output, useColor = buf, false
	mu.Unlock()
	prevLevel := GetLevel()
	prevFormat, _ := currentFormat.Load().(string)
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = prevOutput, prevColor
		mu.Unlock()
		currentLevel.Store(int32(prevLevel))
		currentFormat.Store(prevFormat)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"}, nil},
		{"INFO", []string{"[INFO]", "[WARN]", "[ERROR]"}, []string{"[DEBUG]"}},
		{"WARN", []string{"[WARN]", "[ERROR]"}, []string{"[DEBUG]", "[INFO]"}},
		{"ERROR", []string{"[ERROR]"}, []string{"[DEBUG]", "[INFO]", "[WARN]"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		captureOutput(t)
		SetLevel("debug")
		assert.Equal(t, LevelDebug, GetLevel())
		SetLevel("Warning")
		assert.Equal(t, LevelWarn, GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		captureOutput(t)
		SetLevel("ERROR")
		SetLevel("LOUD")
		assert.Equal(t, LevelError, GetLevel())
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestTextFormat(t *testing.T) {
	t.Run("TimestampAndFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("block admitted", KeyCache, "hot", KeyBlockSize, 4096)

		out := buf.String()
		assert.Regexp(t, `\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] block admitted`, out)
		assert.Contains(t, out, "cache=hot")
		assert.Contains(t, out, "block_size=4096")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf := captureOutput(t)
		Warn("flush failed", Err(errors.New("disk full")))
		assert.Contains(t, buf.String(), `error="disk full"`)
	})

	t.Run("GroupsArePrefixed", func(t *testing.T) {
		buf := captureOutput(t)
		With("component", "tracker").WithGroup("sweep").Info("done", "freed", 10)

		out := buf.String()
		assert.Contains(t, out, "component=tracker")
		assert.Contains(t, out, "sweep.freed=10")
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")
	SetLevel("INFO")

	Info("sweep finished", CacheSize(0), Freed(8192), SweepKind("urgent"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sweep finished", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 8192, entry[KeyFreed])
	assert.Equal(t, "urgent", entry[KeySweepKind])
	assert.Contains(t, entry, "time")
}

func TestFormatSwitching(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")
	SetFormat("xml")
	Info("still json")

	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestContextLogging(t *testing.T) {
	t.Run("InjectsFields", func(t *testing.T) {
		buf := captureOutput(t)
		lc := NewLogContext("req-1", "10.0.0.1").WithCache("hot").WithTrace("abc", "def")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "put block")

		out := buf.String()
		assert.Contains(t, out, "trace_id=abc")
		assert.Contains(t, out, "span_id=def")
		assert.Contains(t, out, "request_id=req-1")
		assert.Contains(t, out, "cache=hot")
		assert.Contains(t, out, "client_ip=10.0.0.1")
	})

	t.Run("WithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)
		WarnCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("CopiesDoNotAlias", func(t *testing.T) {
		lc := NewLogContext("req-2", "")
		withCache := lc.WithCache("cold")
		assert.Empty(t, lc.Cache)
		assert.Equal(t, "cold", withCache.Cache)
		assert.Nil(t, (*LogContext)(nil).WithCache("x"))
	})
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "goroutine", i, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20*50)
}

func TestInit(t *testing.T) {
	t.Run("FileOutput", func(t *testing.T) {
		captureOutput(t)
		path := filepath.Join(t.TempDir(), "dittocache.log")

		require.NoError(t, Init(Config{Level: "WARN", Format: "json", Output: path}))
		t.Cleanup(func() {
			mu.Lock()
			if closer != nil {
				_ = closer.Close()
				closer = nil
			}
			mu.Unlock()
		})
		assert.Equal(t, LevelWarn, GetLevel())
	})

	t.Run("BadPath", func(t *testing.T) {
		captureOutput(t)
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
		assert.Error(t, err)
	})
}
