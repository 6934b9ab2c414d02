// Package logging provides the zap logger used across the conversational
// core. Subsystems get named child loggers so log lines carry the component
// that produced them (orchestrator, agent.discovery, llm, catalog.remote).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	// Debug switches to development encoding and debug level.
	Debug bool
	// Level overrides the log level when non-empty ("debug", "info",
	// "warn", "error"). Ignored when Debug is set.
	Level string
}

// New builds the root logger. Production JSON encoding by default,
// human-readable development encoding in debug mode.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		if opts.Level != "" {
			lvl, err := zapcore.ParseLevel(opts.Level)
			if err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
			}
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
