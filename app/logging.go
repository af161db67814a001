package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLogger writes the access log. It is a separate logger so it can go to its own file.
type AccessLogger struct{ *zap.Logger }

// NewLogger creates the JSON application logger at the configured level.
func NewLogger(env Environment) (*zap.Logger, error) {
	return productionConfig(env.LogLevel).Build()
}

// NewAccessLogger creates the access logger. It writes to stdout and, when configured, to
// TWINE_ACCESS_LOG_FILE. With the access log disabled it discards everything.
func NewAccessLogger(env Environment) (AccessLogger, error) {
	if !env.AccessLog {
		return AccessLogger{zap.NewNop()}, nil
	}

	cfg := productionConfig(zapcore.InfoLevel)
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true

	if env.AccessLogFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, env.AccessLogFile)
	}

	l, err := cfg.Build()
	if err != nil {
		return AccessLogger{}, err
	}

	return AccessLogger{l.Named("access")}, nil
}

func productionConfig(level zapcore.Level) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg
}
