package interfaces

import (
	"context"

	"codeblocks/pkg/types"
)

// ExerciseCatalog serves static exercise definitions
type ExerciseCatalog interface {
	Get(ctx context.Context, exerciseID string) (*types.Definition, error)
	List(ctx context.Context) ([]types.CatalogEntry, error)

	// BufferSeed returns the content a new room starts from
	BufferSeed(ctx context.Context, exerciseID string) (string, error)
}

// RoleAssigner is the authoritative role assignment service
type RoleAssigner interface {
	// Assign resolves (proposed == nil) or changes (proposed != nil) the
	// participant's role for the exercise and returns the confirmed role
	Assign(ctx context.Context, exerciseID, participantID string, proposed *types.Role) (types.Role, error)
}

// ChannelHub is the server half of the Synchronization Channel
type ChannelHub interface {
	Subscribe(ctx context.Context, exerciseID string, sub Subscriber) (string, error)
	Unsubscribe(exerciseID, subscriberID string)
	Publish(ctx context.Context, exerciseID, senderID, content string) error
}
