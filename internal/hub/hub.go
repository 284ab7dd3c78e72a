package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"codeblocks/internal/broker"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Hub is the server half of the Synchronization Channel. It keeps one room per
// exercise, seeds rooms from the catalog, and routes every publish through the
// broker so all hub instances sharing a broker apply publishes in one order.
type Hub struct {
	catalog   interfaces.ExerciseCatalog
	broker    broker.Broker
	logger    *zap.SugaredLogger
	inboxSize int

	rooms           map[string]*room
	running         bool
	subscribed      bool
	shutdownChannel chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
}

// Snapshot is the authoritative content of one room at a version
type Snapshot struct {
	ExerciseID string
	Content    string
	Version    uint64
}

// Stats summarises live hub state for health reporting
type Stats struct {
	Rooms       int `json:"rooms"`
	Subscribers int `json:"subscribers"`
}

// NewHub creates a stopped hub
func NewHub(catalog interfaces.ExerciseCatalog, b broker.Broker, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		catalog:   catalog,
		broker:    b,
		logger:    logger,
		inboxSize: 256,
		rooms:     make(map[string]*room),
	}
}

// Start subscribes the hub to the broker
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	// rooms that outlived a previous Stop get their goroutines back
	for _, r := range h.rooms {
		h.wg.Add(1)
		go h.runRoom(r, h.shutdownChannel)
	}
	h.mu.Unlock()

	h.mu.Lock()
	needSubscribe := !h.subscribed
	h.subscribed = true
	h.mu.Unlock()

	// dispatch drops envelopes while stopped, so one broker subscription
	// serves every Start
	if needSubscribe {
		if err := h.broker.Subscribe(ctx, h.dispatch); err != nil {
			h.mu.Lock()
			h.running = false
			h.subscribed = false
			close(h.shutdownChannel)
			h.mu.Unlock()
			return err
		}
	}

	h.logger.Infow("hub started")
	return nil
}

// Stop terminates every room goroutine. Rooms keep their state until the hub
// is discarded so a final snapshot flush can still read it.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Infow("hub stopped")
	return nil
}

// Subscribe registers sub for exerciseID and returns the current content.
// sub receives that content first as a snapshot update.
func (h *Hub) Subscribe(ctx context.Context, exerciseID string, sub interfaces.Subscriber) (string, error) {
	if sub == nil {
		return "", ErrNilSubscriber
	}
	if !types.IsValidExerciseID(exerciseID) {
		return "", types.ErrInvalidExerciseID
	}

	var (
		content string
		subErr  error
	)
	err := h.withRoom(ctx, exerciseID, func(r *room) {
		content, subErr = r.subscribe(sub)
		if subErr != nil {
			h.evictLocked(r)
		}
	})
	if err != nil {
		return "", err
	}
	if subErr != nil {
		return "", subErr
	}

	h.logger.Debugw("subscribed", "exercise_id", exerciseID, "subscriber_id", sub.SubscriberID())
	return content, nil
}

// Unsubscribe is idempotent; unknown exercises and subscribers are ignored
func (h *Hub) Unsubscribe(exerciseID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[exerciseID]
	if !ok {
		return
	}
	if r.unsubscribe(subscriberID) {
		h.logger.Debugw("unsubscribed", "exercise_id", exerciseID, "subscriber_id", subscriberID)
	}
	h.evictLocked(r)
}

// Publish replaces the exercise content on behalf of senderID. Delivery to
// the other subscribers happens asynchronously in room order; the sender is
// never sent its own publish back.
func (h *Hub) Publish(ctx context.Context, exerciseID, senderID, content string) error {
	if !types.IsValidExerciseID(exerciseID) {
		return types.ErrInvalidExerciseID
	}
	if len(content) > types.MaxContentBytes {
		return types.ErrContentTooLarge
	}

	// the room must exist locally before the envelope comes back from the broker
	if err := h.withRoom(ctx, exerciseID, func(*room) {}); err != nil {
		return err
	}

	return h.broker.Publish(ctx, broker.Envelope{
		ExerciseID: exerciseID,
		SenderID:   senderID,
		Content:    content,
	})
}

// Content returns the authoritative content of a live room
func (h *Hub) Content(exerciseID string) (string, bool) {
	h.mu.Lock()
	r, ok := h.rooms[exerciseID]
	h.mu.Unlock()
	if !ok {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content, true
}

// DirtySnapshots returns every room whose content changed since its last MarkClean
func (h *Hub) DirtySnapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	var snapshots []Snapshot
	for _, r := range h.rooms {
		r.mu.RLock()
		if r.dirty {
			snapshots = append(snapshots, Snapshot{
				ExerciseID: r.exerciseID,
				Content:    r.content,
				Version:    r.version,
			})
		}
		r.mu.RUnlock()
	}
	return snapshots
}

// MarkClean clears the dirty flag if no publish was applied after version
func (h *Hub) MarkClean(exerciseID string, version uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[exerciseID]
	if !ok {
		return
	}
	r.mu.Lock()
	if r.version == version {
		r.dirty = false
	}
	r.mu.Unlock()
	h.evictLocked(r)
}

// Stats reports live rooms and subscribers
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{Rooms: len(h.rooms)}
	for _, r := range h.rooms {
		r.mu.RLock()
		stats.Subscribers += len(r.subscribers)
		r.mu.RUnlock()
	}
	return stats
}

// withRoom runs fn with the hub lock held on the room of exerciseID,
// creating and seeding the room first when needed
func (h *Hub) withRoom(ctx context.Context, exerciseID string, fn func(r *room)) error {
	for {
		h.mu.Lock()
		if !h.running {
			h.mu.Unlock()
			return ErrHubNotRunning
		}
		if r, ok := h.rooms[exerciseID]; ok {
			fn(r)
			h.mu.Unlock()
			return nil
		}
		h.mu.Unlock()

		// TECHNICAL DISCOVERY: Seeding reads the database, so it runs unlocked;
		// a concurrent creator may win and its room is used instead
		seed, err := h.catalog.BufferSeed(ctx, exerciseID)
		if err != nil {
			return err
		}

		h.mu.Lock()
		if _, ok := h.rooms[exerciseID]; !ok && h.running {
			r := newRoom(exerciseID, seed, h.inboxSize)
			h.rooms[exerciseID] = r
			h.wg.Add(1)
			go h.runRoom(r, h.shutdownChannel)
			h.logger.Debugw("room opened", "exercise_id", exerciseID)
		}
		h.mu.Unlock()
	}
}

// dispatch is the broker handler; it routes an envelope to its room's inbox
func (h *Hub) dispatch(env broker.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		target   *room
		shutdown <-chan struct{}
	)
	err := h.withRoom(ctx, env.ExerciseID, func(r *room) {
		r.pending.Add(1)
		target = r
		shutdown = h.shutdownChannel
	})
	if err != nil {
		h.logger.Warnw("dropping publish", "exercise_id", env.ExerciseID, "error", err)
		return
	}

	select {
	case target.inbox <- env:
	case <-target.quit:
		target.pending.Add(-1)
	case <-shutdown:
		target.pending.Add(-1)
	}
}

func (h *Hub) runRoom(r *room, shutdown <-chan struct{}) {
	defer h.wg.Done()

	for {
		select {
		case env := <-r.inbox:
			targets := r.apply(env)
			update := types.Update{
				ExerciseID: env.ExerciseID,
				SenderID:   env.SenderID,
				Content:    env.Content,
			}
			for _, sub := range targets {
				if err := sub.Deliver(update); err != nil {
					h.logger.Warnw("delivery failed, dropping subscriber",
						"exercise_id", r.exerciseID, "subscriber_id", sub.SubscriberID(), "error", err)
					h.Unsubscribe(r.exerciseID, sub.SubscriberID())
				}
			}
			if r.pending.Add(-1) == 0 {
				h.tryEvict(r)
			}

		case <-r.quit:
			return

		case <-shutdown:
			return
		}
	}
}

// tryEvict evicts r if it is still the live room of its exercise
func (h *Hub) tryEvict(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.exerciseID] == r {
		h.evictLocked(r)
	}
}

// evictLocked removes an idle clean room; the caller holds h.mu
func (h *Hub) evictLocked(r *room) {
	if !r.evictable() {
		return
	}
	delete(h.rooms, r.exerciseID)
	close(r.quit)
	h.logger.Debugw("room closed", "exercise_id", r.exerciseID)
}
