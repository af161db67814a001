package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []zapcore.Level{
		zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel,
	} {
		t.Run(level.String(), func(t *testing.T) {
			logger, err := NewLogger(Environment{LogLevel: level})
			require.NoError(t, err)
			require.NotNil(t, logger)

			assert.True(t, logger.Core().Enabled(level))
			if level > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(level-1))
			}
		})
	}
}

func TestNewAccessLoggerDisabled(t *testing.T) {
	logger, err := NewAccessLogger(Environment{AccessLog: false})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewAccessLoggerFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "access.log")

	logger, err := NewAccessLogger(Environment{AccessLog: true, AccessLogFile: file})
	require.NoError(t, err)

	logger.Info("request", zap.String("uri", "/index.html"))
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"access"`)
	assert.Contains(t, string(data), `"uri":"/index.html"`)
	assert.Contains(t, string(data), `"timestamp"`)
}
