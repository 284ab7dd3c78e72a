package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "codeblocks/pkg/database"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Manager is the sqlite implementation of interfaces.DatabaseManager
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.SugaredLogger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	retryDelay   time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the sqlite database, applies pragmas and pending migrations
// and starts the single writer goroutine
func NewManager(config *dbconfig.Config, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	for _, pragma := range dbconfig.SQLitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	migrations := dbconfig.NewMigrationManager(db, config.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	// custom migration directories carry their own schema
	if config.MigrationsPath == "" {
		if err := migrations.ValidateSchema(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database schema invalid: %w", err)
		}
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100),
		retryDelay:   5 * time.Second,
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	logger.Infow("sqlite database ready", "path", config.DatabasePath)
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warnw("database write failed, retrying", "error", err, "delay", m.retryDelay)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Errorw("database write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debugw("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		select {
		case err := <-result:
			return err
		default:
			return ErrManagerClosed
		}
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	}
}

// GetExercise returns one definition
func (m *Manager) GetExercise(ctx context.Context, exerciseID string) (*types.Definition, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, instructions, code, solution
		FROM exercises
		WHERE id = ?
	`, exerciseID)

	var def types.Definition
	err := row.Scan(&def.ID, &def.Title, &def.Instructions, &def.Code, &def.Solution)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to query exercise: %w", err)
	}

	return &def, nil
}

// ListExercises returns every definition ordered by title then id
func (m *Manager) ListExercises(ctx context.Context) ([]*types.Definition, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, title, instructions, code, solution
		FROM exercises
		ORDER BY title, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []*types.Definition
	for rows.Next() {
		var def types.Definition
		if err := rows.Scan(&def.ID, &def.Title, &def.Instructions, &def.Code, &def.Solution); err != nil {
			return nil, fmt.Errorf("failed to scan exercise row: %w", err)
		}
		defs = append(defs, &def)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exercise rows: %w", err)
	}

	return defs, nil
}

// UpsertExercise inserts or replaces a definition
func (m *Manager) UpsertExercise(ctx context.Context, def *types.Definition) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO exercises (id, title, instructions, code, solution)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				instructions = excluded.instructions,
				code = excluded.code,
				solution = excluded.solution
		`, def.ID, def.Title, def.Instructions, def.Code, def.Solution)
		if err != nil {
			return fmt.Errorf("failed to upsert exercise: %w", err)
		}
		return nil
	})
}

// GetRoleAssignment returns the record for one (exercise, participant) pair
func (m *Manager) GetRoleAssignment(ctx context.Context, exerciseID, participantID string) (*types.RoleAssignment, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT exercise_id, participant_id, role, updated_at
		FROM role_assignments
		WHERE exercise_id = ? AND participant_id = ?
	`, exerciseID, participantID)

	var assignment types.RoleAssignment
	err := row.Scan(&assignment.ExerciseID, &assignment.ParticipantID, &assignment.Role, &assignment.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query role assignment: %w", err)
	}

	return &assignment, nil
}

// SaveRoleAssignment creates or overwrites the record for the pair
func (m *Manager) SaveRoleAssignment(ctx context.Context, assignment *types.RoleAssignment) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO role_assignments (exercise_id, participant_id, role, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(exercise_id, participant_id) DO UPDATE SET
				role = excluded.role,
				updated_at = excluded.updated_at
		`, assignment.ExerciseID, assignment.ParticipantID, string(assignment.Role), assignment.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save role assignment: %w", err)
		}
		return nil
	})
}

// ListRoleAssignments returns every record of one exercise ordered by participant
func (m *Manager) ListRoleAssignments(ctx context.Context, exerciseID string) ([]*types.RoleAssignment, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT exercise_id, participant_id, role, updated_at
		FROM role_assignments
		WHERE exercise_id = ?
		ORDER BY participant_id
	`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assignments []*types.RoleAssignment
	for rows.Next() {
		var a types.RoleAssignment
		if err := rows.Scan(&a.ExerciseID, &a.ParticipantID, &a.Role, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role assignment row: %w", err)
		}
		assignments = append(assignments, &a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role assignment rows: %w", err)
	}

	return assignments, nil
}

// SaveBufferSnapshot persists the authoritative content of one exercise
func (m *Manager) SaveBufferSnapshot(ctx context.Context, snapshot *types.BufferSnapshot) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO buffer_snapshots (exercise_id, content, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(exercise_id) DO UPDATE SET
				content = excluded.content,
				updated_at = excluded.updated_at
		`, snapshot.ExerciseID, snapshot.Content, snapshot.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save buffer snapshot: %w", err)
		}
		return nil
	})
}

// GetBufferSnapshot returns the last persisted content of one exercise
func (m *Manager) GetBufferSnapshot(ctx context.Context, exerciseID string) (*types.BufferSnapshot, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT exercise_id, content, updated_at
		FROM buffer_snapshots
		WHERE exercise_id = ?
	`, exerciseID)

	var snapshot types.BufferSnapshot
	err := row.Scan(&snapshot.ExerciseID, &snapshot.Content, &snapshot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query buffer snapshot: %w", err)
	}

	return &snapshot, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exercises").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for schema validation
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the write loop and the connection pool
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
