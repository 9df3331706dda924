// Package logger builds the zap logger shared by every engine component.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments accepted by Config.Environment.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Config holds the logger settings.
type Config struct {
	// Environment selects console output with stack traces on warnings ("development") or JSON
	// output ("production"). Defaults to development.
	Environment string

	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// ServiceName is attached to every entry as the "service" field when set.
	ServiceName string

	// OutputPaths overrides the log sinks. Defaults to stderr.
	OutputPaths []string
}

// New builds a logger from cfg.
//
// Parameters:
//   - cfg: the logger settings
//
// Returns:
//   - *zap.Logger: the configured logger
//   - error: an error if the level or environment is unknown or a sink cannot be opened
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Environment == "" {
		cfg.Environment = EnvironmentDevelopment
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var zc zap.Config
	switch cfg.Environment {
	case EnvironmentDevelopment:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case EnvironmentProduction:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	default:
		return nil, fmt.Errorf("logger: unknown environment %q", cfg.Environment)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = cfg.OutputPaths
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.ServiceName != "" {
		logger = logger.With(zap.String("service", cfg.ServiceName))
	}
	return logger, nil
}
