package interfaces

import (
	"context"

	"codeblocks/pkg/types"
)

// DatabaseManager handles all persistence operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations,
// implemented by both the sqlite and the Postgres managers
type DatabaseManager interface {
	// Exercise definitions

	// GetExercise returns ErrExerciseNotFound for unknown identifiers
	GetExercise(ctx context.Context, exerciseID string) (*types.Definition, error)

	// ListExercises returns definitions ordered by title, then id
	ListExercises(ctx context.Context) ([]*types.Definition, error)

	// UpsertExercise inserts or replaces a definition (seed loading)
	UpsertExercise(ctx context.Context, def *types.Definition) error

	// Role assignment records

	// GetRoleAssignment returns ErrRecordNotFound when the pair has no record
	GetRoleAssignment(ctx context.Context, exerciseID, participantID string) (*types.RoleAssignment, error)

	// SaveRoleAssignment creates or overwrites the record for the pair
	SaveRoleAssignment(ctx context.Context, assignment *types.RoleAssignment) error

	// ListRoleAssignments returns every record of one exercise
	ListRoleAssignments(ctx context.Context, exerciseID string) ([]*types.RoleAssignment, error)

	// Authoritative buffer snapshots

	SaveBufferSnapshot(ctx context.Context, snapshot *types.BufferSnapshot) error

	// GetBufferSnapshot returns ErrRecordNotFound when nothing was persisted yet
	GetBufferSnapshot(ctx context.Context, exerciseID string) (*types.BufferSnapshot, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close waits for pending writes and releases the connection pool
	Close() error
}
