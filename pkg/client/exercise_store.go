package client

import (
	"context"
	"net/url"
	"sync"

	"codeblocks/pkg/types"
)

// ExerciseStore fetches exercise definitions, keeping the last successful
// result per id so role resolution and buffer seeding share one fetch
type ExerciseStore struct {
	api *API

	mu    sync.RWMutex
	cache map[string]types.Definition
}

func NewExerciseStore(api *API) *ExerciseStore {
	return &ExerciseStore{
		api:   api,
		cache: make(map[string]types.Definition),
	}
}

// FetchDefinition returns the definition of exerciseID. Unknown ids yield
// ErrNotFound, transport failures ErrUnavailable; neither is cached.
func (s *ExerciseStore) FetchDefinition(ctx context.Context, exerciseID string) (types.Definition, error) {
	s.mu.RLock()
	def, ok := s.cache[exerciseID]
	s.mu.RUnlock()
	if ok {
		return def, nil
	}

	if !types.IsValidExerciseID(exerciseID) {
		return types.Definition{}, ErrNotFound
	}

	if err := s.api.getJSON(ctx, "/codeblocks/"+url.PathEscape(exerciseID), nil, &def); err != nil {
		return types.Definition{}, err
	}
	if def.ID == "" {
		def.ID = exerciseID
	}

	s.mu.Lock()
	s.cache[exerciseID] = def
	s.mu.Unlock()
	return def, nil
}

// List returns the catalog ordered by title then id
func (s *ExerciseStore) List(ctx context.Context) ([]types.CatalogEntry, error) {
	var entries []types.CatalogEntry
	if err := s.api.getJSON(ctx, "/codeblocks", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
