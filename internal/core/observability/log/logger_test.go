package log

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelSilent,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelUnmarshalText(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("debug")))
	assert.Equal(t, LevelDebug, l)
	text, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "debug", string(text))
}

func TestFieldsReachZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{zapLogger: zap.New(core), level: zap.NewAtomicLevelAt(zap.DebugLevel)}

	scoped := l.With(String("component", "test"))
	scoped.Info("tick done", Tick(7), Float64("fps", 59.5), Error(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "test", ctx["component"])
	assert.Equal(t, uint64(7), ctx["tick"])
	assert.Equal(t, 59.5, ctx["fps"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestWithContextAddsRunID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{zapLogger: zap.New(core), level: zap.NewAtomicLevelAt(zap.DebugLevel)}

	ctx := ContextWithRunID(context.Background(), "run-1")
	l.WithContext(ctx).Warn("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "run-1", logs.All()[0].ContextMap()["run_id"])
}

func TestSetLevel(t *testing.T) {
	l := NewNop()
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.GetLevel())
	l.SetLevel(LevelSilent)
	assert.Equal(t, LevelSilent, l.GetLevel())
}
