package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	log, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log, err = New(Options{Level: "error", Verbose: true, JSON: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel), "verbose should force debug")

	_, err = New(Options{Level: "nope"})
	assert.Error(t, err)
}

func TestForTagsCategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	For(log, CategoryAggregate).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "aggregate", entries[0].ContextMap()["category"])
}

func TestForNilLogger(t *testing.T) {
	log := For(nil, CategoryLock)
	require.NotNil(t, log)
	log.Info("dropped")
}

func TestTimerStopWithThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	timer := StartTimer(log, "aggregate")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	timer = StartTimer(log, "aggregate")
	timer.StopWithThreshold(time.Hour)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.DebugLevel).Len())
}
