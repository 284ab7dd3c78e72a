// Package snapshot persists the hub's authoritative buffers on a schedule so a
// restarted server seeds rooms from the last known content.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"codeblocks/internal/hub"
	"codeblocks/pkg/types"
)

// CleanupSchedule drives housekeeping of idle rate limiter entries
const CleanupSchedule = "@every 5m"

// Source is the hub side of a flush
type Source interface {
	DirtySnapshots() []hub.Snapshot
	MarkClean(exerciseID string, version uint64)
}

// Store persists one snapshot
type Store interface {
	SaveBufferSnapshot(ctx context.Context, snapshot *types.BufferSnapshot) error
}

// Cleaner drops stale bookkeeping and reports how much it removed
type Cleaner interface {
	Cleanup() int
}

// Job flushes dirty rooms to the database on a cron schedule
type Job struct {
	source   Source
	store    Store
	cleaner  Cleaner
	schedule string
	logger   *zap.SugaredLogger

	cron    *cron.Cron
	running bool
	flushMu sync.Mutex
	mu      sync.Mutex
}

// NewJob creates a stopped job. cleaner may be nil.
func NewJob(source Source, store Store, cleaner Cleaner, schedule string, logger *zap.SugaredLogger) *Job {
	return &Job{
		source:   source,
		store:    store,
		cleaner:  cleaner,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the flush and cleanup entries and starts the scheduler
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return ErrJobAlreadyRunning
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(j.schedule, j.runFlush); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, j.schedule, err)
	}
	if j.cleaner != nil {
		if _, err := c.AddFunc(CleanupSchedule, j.runCleanup); err != nil {
			return fmt.Errorf("failed to register cleanup job: %w", err)
		}
	}

	c.Start()
	j.cron = c
	j.running = true
	j.logger.Infow("snapshot job started", "schedule", j.schedule)
	return nil
}

// Stop waits for a running flush, then flushes once more so no applied
// publish is lost on a clean shutdown
func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	c := j.cron
	j.mu.Unlock()

	<-c.Stop().Done()

	_, err := j.Flush(ctx)
	j.logger.Infow("snapshot job stopped")
	return err
}

// Flush persists every dirty room and returns how many were saved.
// A room that changed again while saving stays dirty for the next run.
func (j *Job) Flush(ctx context.Context) (int, error) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	saved := 0
	var firstErr error
	for _, snap := range j.source.DirtySnapshots() {
		err := j.store.SaveBufferSnapshot(ctx, &types.BufferSnapshot{
			ExerciseID: snap.ExerciseID,
			Content:    snap.Content,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			j.logger.Errorw("failed to save buffer snapshot", "exercise_id", snap.ExerciseID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to save snapshot for %s: %w", snap.ExerciseID, err)
			}
			continue
		}
		j.source.MarkClean(snap.ExerciseID, snap.Version)
		saved++
	}
	return saved, firstErr
}

func (j *Job) runFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if saved, err := j.Flush(ctx); err == nil && saved > 0 {
		j.logger.Debugw("buffer snapshots saved", "count", saved)
	}
}

func (j *Job) runCleanup() {
	if removed := j.cleaner.Cleanup(); removed > 0 {
		j.logger.Debugw("rate limiter entries removed", "count", removed)
	}
}
