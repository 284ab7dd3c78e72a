package hub

import (
	"sync"
	"sync/atomic"

	"codeblocks/internal/broker"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// room owns the authoritative buffer of one exercise
// ARCHITECTURAL DISCOVERY: One goroutine per room applies publishes in inbox
// order, so exercises never block each other and each one has a total order
type room struct {
	exerciseID  string
	content     string
	version     uint64
	dirty       bool
	subscribers map[string]interfaces.Subscriber
	mu          sync.RWMutex

	inbox   chan broker.Envelope
	pending atomic.Int64 // envelopes routed to this room but not yet applied
	quit    chan struct{}
}

func newRoom(exerciseID, seed string, inboxSize int) *room {
	return &room{
		exerciseID:  exerciseID,
		content:     seed,
		subscribers: make(map[string]interfaces.Subscriber),
		inbox:       make(chan broker.Envelope, inboxSize),
		quit:        make(chan struct{}),
	}
}

// subscribe registers sub and hands it the current content. Both happen under
// the room lock, so the snapshot precedes every update the room applies later.
func (r *room) subscribe(sub interfaces.Subscriber) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := sub.Deliver(types.Update{
		ExerciseID: r.exerciseID,
		Content:    r.content,
		Snapshot:   true,
	})
	if err != nil {
		return "", err
	}
	r.subscribers[sub.SubscriberID()] = sub
	return r.content, nil
}

func (r *room) unsubscribe(subscriberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[subscriberID]; !ok {
		return false
	}
	delete(r.subscribers, subscriberID)
	return true
}

// apply replaces the content and returns the subscribers to notify
func (r *room) apply(env broker.Envelope) []interfaces.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.content = env.Content
	r.version++
	r.dirty = true

	targets := make([]interfaces.Subscriber, 0, len(r.subscribers))
	for id, sub := range r.subscribers {
		if id != env.SenderID {
			targets = append(targets, sub)
		}
	}
	return targets
}

// evictable is checked with the hub lock held
func (r *room) evictable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers) == 0 && !r.dirty && r.pending.Load() == 0
}
