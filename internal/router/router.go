package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Client is the router's view of one live connection
type Client interface {
	interfaces.Subscriber
	interfaces.Connection
}

// SubscriptionTracker records which exercises each connection follows
type SubscriptionTracker interface {
	AddSubscription(connectionID, exerciseID string)
	RemoveSubscription(connectionID, exerciseID string)
	Subscriptions(connectionID string) []string
}

// Router decodes client events and dispatches them to the hub
// ARCHITECTURAL DISCOVERY: Pure routing logic without connection handling
// keeps the websocket layer free of channel semantics
type Router struct {
	hub         interfaces.ChannelHub
	tracker     SubscriptionTracker
	rateLimiter *RateLimiter
	logger      *zap.SugaredLogger
}

// NewRouter creates a router limiting each participant to perMinute codeChange events
func NewRouter(hub interfaces.ChannelHub, tracker SubscriptionTracker, perMinute int, logger *zap.SugaredLogger) *Router {
	return &Router{
		hub:         hub,
		tracker:     tracker,
		rateLimiter: NewRateLimiter(perMinute, time.Minute),
		logger:      logger,
	}
}

// RateLimiter exposes the limiter for periodic cleanup
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// HandleMessage decodes one frame and routes it. Failures are reported to
// the client as error events; the connection stays open.
func (r *Router) HandleMessage(ctx context.Context, client Client, data []byte) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		r.sendError(client, "", "", ErrMalformedEvent)
		return
	}

	if err := r.Route(ctx, client, &event); err != nil {
		r.logger.Debugw("event rejected",
			"connection_id", client.GetConnectionID(), "event", event.Event, "exercise_id", event.ExerciseID, "error", err)
		r.sendError(client, event.Event, event.ExerciseID, err)
	}
}

// Route applies one decoded event on behalf of client
func (r *Router) Route(ctx context.Context, client Client, event *types.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	connID := client.GetConnectionID()

	switch event.Event {
	case types.EventSubscribe:
		// the hub delivers the snapshot event through the client itself
		if _, err := r.hub.Subscribe(ctx, event.ExerciseID, client); err != nil {
			return err
		}
		r.tracker.AddSubscription(connID, event.ExerciseID)
		return nil

	case types.EventUnsubscribe:
		r.hub.Unsubscribe(event.ExerciseID, connID)
		r.tracker.RemoveSubscription(connID, event.ExerciseID)
		return nil

	case types.EventCodeChange:
		if !r.rateLimiter.Allow(client.GetParticipantID()) {
			return ErrRateLimitExceeded
		}
		exerciseID, err := r.resolveScope(connID, event.ExerciseID)
		if err != nil {
			return err
		}
		return r.hub.Publish(ctx, exerciseID, connID, event.Code)
	}

	return types.ErrInvalidEvent
}

// Disconnect drops every subscription of a closed connection
func (r *Router) Disconnect(client Client) {
	connID := client.GetConnectionID()
	for _, exerciseID := range r.tracker.Subscriptions(connID) {
		r.hub.Unsubscribe(exerciseID, connID)
		r.tracker.RemoveSubscription(connID, exerciseID)
	}
}

// resolveScope picks the exercise of a codeChange event
// FUNCTIONAL DISCOVERY: An omitted exerciseId means the connection's single subscription
func (r *Router) resolveScope(connID, exerciseID string) (string, error) {
	if exerciseID != "" {
		return exerciseID, nil
	}

	subs := r.tracker.Subscriptions(connID)
	switch len(subs) {
	case 0:
		return "", ErrNotSubscribed
	case 1:
		return subs[0], nil
	default:
		return "", ErrAmbiguousScope
	}
}

func (r *Router) sendError(client Client, request, exerciseID string, err error) {
	event := types.Event{
		Event:      types.EventError,
		ExerciseID: exerciseID,
		Message:    errorMessage(err),
		Request:    request,
	}
	if writeErr := client.WriteJSON(event); writeErr != nil {
		r.logger.Debugw("failed to send error event", "connection_id", client.GetConnectionID(), "error", writeErr)
	}
}

// errorMessage hides internal failures behind a generic message
func errorMessage(err error) string {
	for _, known := range []error{
		ErrMalformedEvent, ErrRateLimitExceeded, ErrNotSubscribed, ErrAmbiguousScope,
		types.ErrInvalidEvent, types.ErrInvalidExerciseID, types.ErrContentTooLarge,
		interfaces.ErrExerciseNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
