package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeblocks/internal/broker"
	"codeblocks/internal/hub"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

type mockSource struct {
	mu    sync.Mutex
	dirty map[string]hub.Snapshot
}

func newMockSource(snaps ...hub.Snapshot) *mockSource {
	s := &mockSource{dirty: make(map[string]hub.Snapshot)}
	for _, snap := range snaps {
		s.dirty[snap.ExerciseID] = snap
	}
	return s
}

func (s *mockSource) DirtySnapshots() []hub.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hub.Snapshot
	for _, snap := range s.dirty {
		out = append(out, snap)
	}
	return out
}

func (s *mockSource) MarkClean(exerciseID string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.dirty[exerciseID]; ok && snap.Version == version {
		delete(s.dirty, exerciseID)
	}
}

func (s *mockSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

type mockStore struct {
	mu      sync.Mutex
	saved   map[string]string
	failFor string
}

func newMockStore() *mockStore {
	return &mockStore{saved: make(map[string]string)}
}

func (m *mockStore) SaveBufferSnapshot(ctx context.Context, snapshot *types.BufferSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot.ExerciseID == m.failFor {
		return errors.New("disk full")
	}
	m.saved[snapshot.ExerciseID] = snapshot.Content
	return nil
}

func (m *mockStore) content(exerciseID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.saved[exerciseID]
	return c, ok
}

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) Cleanup() int {
	c.calls.Add(1)
	return 0
}

func TestJob_FlushSavesAndMarksClean(t *testing.T) {
	source := newMockSource(
		hub.Snapshot{ExerciseID: "ex1", Content: "a", Version: 1},
		hub.Snapshot{ExerciseID: "ex2", Content: "b", Version: 3},
	)
	store := newMockStore()
	job := NewJob(source, store, nil, "@every 1h", zap.NewNop().Sugar())

	saved, err := job.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	assert.Equal(t, 0, source.count())

	content, ok := store.content("ex2")
	require.True(t, ok)
	assert.Equal(t, "b", content)
}

func TestJob_FlushFailureKeepsRoomDirty(t *testing.T) {
	source := newMockSource(
		hub.Snapshot{ExerciseID: "ex1", Content: "a", Version: 1},
		hub.Snapshot{ExerciseID: "ex2", Content: "b", Version: 1},
	)
	store := newMockStore()
	store.failFor = "ex1"
	job := NewJob(source, store, nil, "@every 1h", zap.NewNop().Sugar())

	saved, err := job.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ex1")
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, source.count())
}

func TestJob_StartStop(t *testing.T) {
	source := newMockSource(hub.Snapshot{ExerciseID: "ex1", Content: "a", Version: 1})
	store := newMockStore()
	job := NewJob(source, store, &countingCleaner{}, "@every 1s", zap.NewNop().Sugar())

	require.NoError(t, job.Start())
	assert.ErrorIs(t, job.Start(), ErrJobAlreadyRunning)

	assert.Eventually(t, func() bool {
		_, ok := store.content("ex1")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, job.Stop(context.Background()))
	require.NoError(t, job.Stop(context.Background()))
}

func TestJob_StopFlushesPendingWork(t *testing.T) {
	source := newMockSource()
	store := newMockStore()
	job := NewJob(source, store, nil, "@every 1h", zap.NewNop().Sugar())
	require.NoError(t, job.Start())

	source.mu.Lock()
	source.dirty["ex1"] = hub.Snapshot{ExerciseID: "ex1", Content: "late", Version: 7}
	source.mu.Unlock()

	require.NoError(t, job.Stop(context.Background()))
	content, ok := store.content("ex1")
	require.True(t, ok)
	assert.Equal(t, "late", content)
}

func TestJob_InvalidSchedule(t *testing.T) {
	job := NewJob(newMockSource(), newMockStore(), nil, "not a schedule", zap.NewNop().Sugar())
	assert.ErrorIs(t, job.Start(), ErrInvalidSchedule)
}

type seedCatalog struct {
	interfaces.ExerciseCatalog
}

func (seedCatalog) BufferSeed(ctx context.Context, exerciseID string) (string, error) {
	return "seed", nil
}

type nopSubscriber struct{ id string }

func (s nopSubscriber) SubscriberID() string              { return s.id }
func (s nopSubscriber) Deliver(update types.Update) error { return nil }

func TestJob_FlushWithRealHub(t *testing.T) {
	h := hub.NewHub(seedCatalog{}, broker.NewMemory(), zap.NewNop().Sugar())
	require.NoError(t, h.Start(context.Background()))
	defer func() { _ = h.Stop() }()

	ctx := context.Background()
	_, err := h.Subscribe(ctx, "ex1", nopSubscriber{id: "s1"})
	require.NoError(t, err)
	require.NoError(t, h.Publish(ctx, "ex1", "s2", "edited"))

	assert.Eventually(t, func() bool {
		return len(h.DirtySnapshots()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	store := newMockStore()
	job := NewJob(h, store, nil, "@every 1h", zap.NewNop().Sugar())
	saved, err := job.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Empty(t, h.DirtySnapshots())

	content, ok := store.content("ex1")
	require.True(t, ok)
	assert.Equal(t, "edited", content)
}
