package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level  string
		format string
		want   zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"warn", "json", zapcore.WarnLevel},
		{"error", "json", zapcore.ErrorLevel},
		{"", "", zapcore.InfoLevel},
		{"verbose", "json", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			l, err := New(tt.level, tt.format, "staycohort")
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}
