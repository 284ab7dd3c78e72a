package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dbconfig "codeblocks/pkg/database"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config, zap.NewNop().Sugar())
	require.NoError(t, err)
	manager.retryDelay = 10 * time.Millisecond
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

// setupPostgres runs the shared contract against a real server when
// CODEBLOCKS_TEST_POSTGRES_DSN is set
func setupPostgres(t *testing.T) *PostgresManager {
	t.Helper()

	dsn := os.Getenv("CODEBLOCKS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CODEBLOCKS_TEST_POSTGRES_DSN not set")
	}

	config := dbconfig.DefaultConfig()
	config.Driver = dbconfig.DriverPostgres
	config.DSN = dsn

	manager, err := NewPostgresManager(context.Background(), config, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = manager.pool.Exec(context.Background(), "DELETE FROM exercises WHERE id LIKE 'contract-%'")
		_ = manager.Close()
	})

	return manager
}

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.DatabaseManager = (*Manager)(nil)
	var _ interfaces.DatabaseManager = (*PostgresManager)(nil)
}

func TestManager_Contract(t *testing.T) {
	runContract(t, setupTestDB(t))
}

func TestPostgresManager_Contract(t *testing.T) {
	runContract(t, setupPostgres(t))
}

// runContract exercises every DatabaseManager operation against one backend
func runContract(t *testing.T, db interfaces.DatabaseManager) {
	ctx := context.Background()

	defs := []*types.Definition{
		{ID: "contract-b", Title: "Closures", Instructions: "wrap it", Code: "let x", Solution: "let x = 1"},
		{ID: "contract-a", Title: "Async", Code: "await", Solution: "await x"},
		{ID: "contract-c", Title: "Async", Code: "", Solution: ""},
	}
	for _, def := range defs {
		require.NoError(t, db.UpsertExercise(ctx, def))
	}

	t.Run("get exercise", func(t *testing.T) {
		got, err := db.GetExercise(ctx, "contract-b")
		require.NoError(t, err)
		assert.Equal(t, defs[0], got)

		_, err = db.GetExercise(ctx, "contract-missing")
		assert.ErrorIs(t, err, interfaces.ErrExerciseNotFound)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		updated := *defs[0]
		updated.Solution = "const x = 1"
		require.NoError(t, db.UpsertExercise(ctx, &updated))

		got, err := db.GetExercise(ctx, "contract-b")
		require.NoError(t, err)
		assert.Equal(t, "const x = 1", got.Solution)
	})

	t.Run("list ordered by title then id", func(t *testing.T) {
		all, err := db.ListExercises(ctx)
		require.NoError(t, err)

		var ids []string
		for _, def := range all {
			if len(def.ID) > 9 && def.ID[:9] == "contract-" {
				ids = append(ids, def.ID)
			}
		}
		assert.Equal(t, []string{"contract-a", "contract-c", "contract-b"}, ids)
	})

	t.Run("role assignments", func(t *testing.T) {
		_, err := db.GetRoleAssignment(ctx, "contract-a", "p1")
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, db.SaveRoleAssignment(ctx, &types.RoleAssignment{
			ExerciseID: "contract-a", ParticipantID: "p1", Role: types.RoleMentor, UpdatedAt: now,
		}))
		require.NoError(t, db.SaveRoleAssignment(ctx, &types.RoleAssignment{
			ExerciseID: "contract-a", ParticipantID: "p2", Role: types.RoleStudent, UpdatedAt: now,
		}))
		require.NoError(t, db.SaveRoleAssignment(ctx, &types.RoleAssignment{
			ExerciseID: "contract-a", ParticipantID: "p1", Role: types.RoleStudent, UpdatedAt: now.Add(time.Second),
		}))

		got, err := db.GetRoleAssignment(ctx, "contract-a", "p1")
		require.NoError(t, err)
		assert.Equal(t, types.RoleStudent, got.Role)
		assert.True(t, got.UpdatedAt.Equal(now.Add(time.Second)), "updated_at %v", got.UpdatedAt)

		list, err := db.ListRoleAssignments(ctx, "contract-a")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "p1", list[0].ParticipantID)
		assert.Equal(t, "p2", list[1].ParticipantID)

		list, err = db.ListRoleAssignments(ctx, "contract-b")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("buffer snapshots", func(t *testing.T) {
		_, err := db.GetBufferSnapshot(ctx, "contract-a")
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, db.SaveBufferSnapshot(ctx, &types.BufferSnapshot{ExerciseID: "contract-a", Content: "v1", UpdatedAt: now}))
		require.NoError(t, db.SaveBufferSnapshot(ctx, &types.BufferSnapshot{ExerciseID: "contract-a", Content: "v2", UpdatedAt: now}))

		got, err := db.GetBufferSnapshot(ctx, "contract-a")
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Content)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, db.HealthCheck(ctx))
	})
}

func TestManager_ForeignKeyFailureIsRetriedThenReported(t *testing.T) {
	manager := setupTestDB(t)

	err := manager.SaveRoleAssignment(context.Background(), &types.RoleAssignment{
		ExerciseID: "no-such-exercise", ParticipantID: "p1", Role: types.RoleMentor, UpdatedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestManager_SingleWriterPattern(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- manager.UpsertExercise(ctx, &types.Definition{
				ID:    fmt.Sprintf("ex-%02d", i),
				Title: fmt.Sprintf("Exercise %02d", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	all, err := manager.ListExercises(ctx)
	require.NoError(t, err)
	assert.Len(t, all, writers)
}

func TestManager_ConcurrentReadAccess(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, manager.UpsertExercise(ctx, &types.Definition{ID: "shared", Title: "Shared"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.GetExercise(ctx, "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestManager_CleanShutdown(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, manager.UpsertExercise(ctx, &types.Definition{ID: "before", Title: "Before"}))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "close is idempotent")

	err := manager.UpsertExercise(ctx, &types.Definition{ID: "after", Title: "After"})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestManager_ReopenKeepsData(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	first, err := NewManager(config, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, first.UpsertExercise(ctx, &types.Definition{ID: "kept", Title: "Kept"}))
	require.NoError(t, first.Close())

	second, err := NewManager(config, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetExercise(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)

	validator := dbconfig.NewSchemaValidator(second.GetDB())
	assert.NoError(t, validator.ValidateTablesExist())
}

func TestManager_RejectsUnconstrainedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// role_assignments created earlier without its foreign key and role check
	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE role_assignments (
		exercise_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		role TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (exercise_id, participant_id)
	)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	config := dbconfig.DefaultConfig()
	config.DatabasePath = path
	_, err = NewManager(config, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint not enforced")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "open.db")
	db, err := Open(ctx, config, logger)
	require.NoError(t, err)
	assert.IsType(t, &Manager{}, db)
	require.NoError(t, db.Close())

	bad := dbconfig.DefaultConfig()
	bad.Driver = "mysql"
	_, err = Open(ctx, bad, logger)
	assert.Error(t, err)
}
