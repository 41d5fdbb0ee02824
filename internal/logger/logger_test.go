package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextLogger checks that named and annotated loggers travel through the context.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), NewWithWriter(&buf, zapcore.DebugLevel))
	ctx = WithName(ctx, "cave")
	ctx = WithKV(ctx, "device_id", "cheese-cave-01")

	InfoKV(ctx, "Fan state set", "fan", "on")

	out := buf.String()
	require.Contains(t, out, "cave")
	require.Contains(t, out, "Fan state set")
	require.Contains(t, out, "cheese-cave-01")
	require.Contains(t, out, "fan")
	require.Contains(t, out, `"on"`)
}

// TestFromContext_FallsBackToGlobal ensures a bare context still yields a usable logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithLevel pins a logger below or above its core level.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	verbose := NewWithWriter(&buf, zapcore.InfoLevel, WithLevel(zapcore.DebugLevel))
	verbose.Debug("tick details")
	require.Contains(t, buf.String(), "tick details")

	buf.Reset()

	quiet := NewWithWriter(&buf, zapcore.DebugLevel, WithLevel(zapcore.WarnLevel))
	quiet.Info("dialing device")
	quiet.With("method", "SetFanState").Warn("device unavailable")

	require.NotContains(t, buf.String(), "dialing device")
	require.Contains(t, buf.String(), "device unavailable")
}
