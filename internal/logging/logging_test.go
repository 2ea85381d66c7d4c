package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		logger, err := New(Config{Level: tt.level})
		require.NoError(t, err, tt.level)
		assert.True(t, logger.Core().Enabled(tt.want))
		if tt.want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(tt.want-1))
		}
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		logger, err := New(Config{Format: format})
		require.NoError(t, err, format)
		logger.Info("constructed")
	}

	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestSync_SwallowsStdoutErrors(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	assert.NoError(t, Sync(logger), "syncing stdout must not surface EINVAL/ENOTTY")
}
