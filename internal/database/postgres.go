package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbconfig "codeblocks/pkg/database"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// PostgresManager implements interfaces.DatabaseManager over a pgx pool.
// Postgres handles concurrent writers itself, so there is no write loop.
type PostgresManager struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewPostgresManager connects to config.DSN and applies the embedded Postgres migrations
func NewPostgresManager(ctx context.Context, config *dbconfig.Config, logger *zap.SugaredLogger) (*PostgresManager, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	manager := &PostgresManager{pool: pool, logger: logger}
	if err := manager.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Infow("postgres database ready", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return manager, nil
}

func (m *PostgresManager) applyMigrations(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := dbconfig.LoadMigrations(dbconfig.PostgresMigrations())
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
			var applied bool
			err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)",
				migration.Version).Scan(&applied)
			if err != nil || applied {
				return err
			}
			if _, err := tx.Exec(ctx, migration.SQL); err != nil {
				return err
			}
			_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version)
			if err == nil {
				m.logger.Infow("applied migration", "version", migration.Version, "description", migration.Description)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

func (m *PostgresManager) GetExercise(ctx context.Context, exerciseID string) (*types.Definition, error) {
	var def types.Definition
	err := m.pool.QueryRow(ctx, `
		SELECT id, title, instructions, code, solution
		FROM exercises
		WHERE id = $1
	`, exerciseID).Scan(&def.ID, &def.Title, &def.Instructions, &def.Code, &def.Solution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to query exercise: %w", err)
	}
	return &def, nil
}

func (m *PostgresManager) ListExercises(ctx context.Context) ([]*types.Definition, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT id, title, instructions, code, solution
		FROM exercises
		ORDER BY title, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exercises: %w", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.Definition, error) {
		var def types.Definition
		err := row.Scan(&def.ID, &def.Title, &def.Instructions, &def.Code, &def.Solution)
		return &def, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan exercise rows: %w", err)
	}
	return defs, nil
}

func (m *PostgresManager) UpsertExercise(ctx context.Context, def *types.Definition) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO exercises (id, title, instructions, code, solution)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			instructions = EXCLUDED.instructions,
			code = EXCLUDED.code,
			solution = EXCLUDED.solution
	`, def.ID, def.Title, def.Instructions, def.Code, def.Solution)
	if err != nil {
		return fmt.Errorf("failed to upsert exercise: %w", err)
	}
	return nil
}

func (m *PostgresManager) GetRoleAssignment(ctx context.Context, exerciseID, participantID string) (*types.RoleAssignment, error) {
	var (
		a    types.RoleAssignment
		role string
	)
	err := m.pool.QueryRow(ctx, `
		SELECT exercise_id, participant_id, role, updated_at
		FROM role_assignments
		WHERE exercise_id = $1 AND participant_id = $2
	`, exerciseID, participantID).Scan(&a.ExerciseID, &a.ParticipantID, &role, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query role assignment: %w", err)
	}
	a.Role = types.Role(role)
	return &a, nil
}

func (m *PostgresManager) SaveRoleAssignment(ctx context.Context, assignment *types.RoleAssignment) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO role_assignments (exercise_id, participant_id, role, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (exercise_id, participant_id) DO UPDATE SET
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
	`, assignment.ExerciseID, assignment.ParticipantID, string(assignment.Role), assignment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save role assignment: %w", err)
	}
	return nil
}

func (m *PostgresManager) ListRoleAssignments(ctx context.Context, exerciseID string) ([]*types.RoleAssignment, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT exercise_id, participant_id, role, updated_at
		FROM role_assignments
		WHERE exercise_id = $1
		ORDER BY participant_id
	`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role assignments: %w", err)
	}

	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.RoleAssignment, error) {
		var (
			a    types.RoleAssignment
			role string
		)
		err := row.Scan(&a.ExerciseID, &a.ParticipantID, &role, &a.UpdatedAt)
		a.Role = types.Role(role)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan role assignment rows: %w", err)
	}
	return assignments, nil
}

func (m *PostgresManager) SaveBufferSnapshot(ctx context.Context, snapshot *types.BufferSnapshot) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO buffer_snapshots (exercise_id, content, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (exercise_id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`, snapshot.ExerciseID, snapshot.Content, snapshot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save buffer snapshot: %w", err)
	}
	return nil
}

func (m *PostgresManager) GetBufferSnapshot(ctx context.Context, exerciseID string) (*types.BufferSnapshot, error) {
	var snapshot types.BufferSnapshot
	err := m.pool.QueryRow(ctx, `
		SELECT exercise_id, content, updated_at
		FROM buffer_snapshots
		WHERE exercise_id = $1
	`, exerciseID).Scan(&snapshot.ExerciseID, &snapshot.Content, &snapshot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query buffer snapshot: %w", err)
	}
	return &snapshot, nil
}

func (m *PostgresManager) HealthCheck(ctx context.Context) error {
	if err := m.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.pool.QueryRow(ctx, "SELECT COUNT(*) FROM exercises").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

func (m *PostgresManager) Close() error {
	m.pool.Close()
	return nil
}
