package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Catalog implements interfaces.ExerciseCatalog as a read-through cache over
// the database. Definitions are immutable once stored, so entries never expire.
type Catalog struct {
	dbManager   interfaces.DatabaseManager
	logger      *zap.SugaredLogger
	definitions map[string]*types.Definition
	mu          sync.RWMutex
}

// NewCatalog creates an empty catalog
func NewCatalog(dbManager interfaces.DatabaseManager, logger *zap.SugaredLogger) *Catalog {
	return &Catalog{
		dbManager:   dbManager,
		logger:      logger,
		definitions: make(map[string]*types.Definition),
	}
}

// Load warms the cache with every stored definition
func (c *Catalog) Load(ctx context.Context) error {
	defs, err := c.dbManager.ListExercises(ctx)
	if err != nil {
		return fmt.Errorf("failed to load exercises: %w", err)
	}

	c.mu.Lock()
	for _, def := range defs {
		c.definitions[def.ID] = def
	}
	c.mu.Unlock()

	c.logger.Infow("loaded exercise catalog", "count", len(defs))
	return nil
}

// Seed upserts the definitions of a JSON array file. Running it twice with
// the same file leaves the store unchanged.
func (c *Catalog) Seed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var defs []*types.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidSeed, path, err)
	}

	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def == nil {
			return 0, fmt.Errorf("%w: entry %d is null", ErrInvalidSeed, i)
		}
		if err := def.Validate(); err != nil {
			return 0, fmt.Errorf("%w: entry %d: %w", ErrInvalidSeed, i, err)
		}
		if seen[def.ID] {
			return 0, fmt.Errorf("%w: duplicate id %s", ErrInvalidSeed, def.ID)
		}
		seen[def.ID] = true
	}

	for _, def := range defs {
		if err := c.dbManager.UpsertExercise(ctx, def); err != nil {
			return 0, fmt.Errorf("failed to store exercise %s: %w", def.ID, err)
		}
		c.mu.Lock()
		c.definitions[def.ID] = def
		c.mu.Unlock()
	}

	c.logger.Infow("seeded exercises", "file", path, "count", len(defs))
	return len(defs), nil
}

// Get returns one definition; unknown or malformed ids yield ErrExerciseNotFound
func (c *Catalog) Get(ctx context.Context, exerciseID string) (*types.Definition, error) {
	if !types.IsValidExerciseID(exerciseID) {
		return nil, interfaces.ErrExerciseNotFound
	}

	c.mu.RLock()
	def, exists := c.definitions[exerciseID]
	c.mu.RUnlock()
	if exists {
		return def, nil
	}

	def, err := c.dbManager.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.definitions[exerciseID] = def
	c.mu.Unlock()

	return def, nil
}

// List returns the catalog ordered by title then id
func (c *Catalog) List(ctx context.Context) ([]types.CatalogEntry, error) {
	defs, err := c.dbManager.ListExercises(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}

	entries := make([]types.CatalogEntry, 0, len(defs))
	for _, def := range defs {
		entries = append(entries, def.Catalog())
	}
	return entries, nil
}

// BufferSeed returns the last persisted snapshot of the exercise buffer,
// or the definition's starting code when nothing was persisted yet
func (c *Catalog) BufferSeed(ctx context.Context, exerciseID string) (string, error) {
	def, err := c.Get(ctx, exerciseID)
	if err != nil {
		return "", err
	}

	snapshot, err := c.dbManager.GetBufferSnapshot(ctx, exerciseID)
	switch {
	case err == nil:
		return snapshot.Content, nil
	case errors.Is(err, interfaces.ErrRecordNotFound):
		return def.Code, nil
	default:
		return "", fmt.Errorf("failed to load buffer snapshot: %w", err)
	}
}
