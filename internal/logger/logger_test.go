package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"ERROR":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got, s)
	}

	_, ok := ParseLevel("loud")
	require.False(t, ok)
}

// TestContextCarriesNamedLogger ensures WithName scopes messages to a component name.
func TestContextCarriesNamedLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "compiler")

	InfoKV(ctx, "staged", "files", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "compiler", entries[0].LoggerName)
	require.Equal(t, "staged", entries[0].Message)
	require.Equal(t, int64(3), entries[0].ContextMap()["files"])
}

// TestFromContextFallsBack returns the global logger when the context has none.
func TestFromContextFallsBack(t *testing.T) {
	t.Parallel()

	require.NotNil(t, FromContext(context.Background()))
}
