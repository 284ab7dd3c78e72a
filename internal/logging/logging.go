package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a sugared zap logger for the given environment
// ("development", "production" or "example") and installs it as the global logger
func New(env string) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)

	switch env {
	case "development":
		logger, err = zap.NewDevelopment()
	case "production", "":
		logger, err = zap.NewProduction()
	case "example":
		logger = zap.NewExample()
	default:
		return nil, fmt.Errorf("unknown logging env %q", env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s logger: %w", env, err)
	}

	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and library callers
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
