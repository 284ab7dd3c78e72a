package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	dbconfig "codeblocks/pkg/database"
	"codeblocks/pkg/interfaces"
)

// Open validates config and returns the manager for its driver
func Open(ctx context.Context, config *dbconfig.Config, logger *zap.SugaredLogger) (interfaces.DatabaseManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	switch config.Driver {
	case dbconfig.DriverSQLite:
		manager, err := NewManager(config, logger)
		if err != nil {
			return nil, err
		}
		return manager, nil
	case dbconfig.DriverPostgres:
		manager, err := NewPostgresManager(ctx, config, logger)
		if err != nil {
			return nil, err
		}
		return manager, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, config.Driver)
	}
}
