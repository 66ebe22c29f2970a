// Package logging constructs the zap loggers used by the trackers, the
// calibrator and the example programs.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggerConfig returns a console logger config writing to stdout
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger at the given level, one of
// debug|info|warn|error.  An empty level means info.
func NewLogger(name, level string) (*zap.SugaredLogger, error) {

	cfg := NewLoggerConfig()

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)

		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()

	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.Sugar().Named(name), nil
}

// OrNop returns logger, or a no-op logger when it is nil
func OrNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}
