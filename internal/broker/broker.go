package broker

import (
	"context"
	"errors"
)

// Envelope is one published full-buffer snapshot on the bus
type Envelope struct {
	ExerciseID string `json:"exerciseId"`
	SenderID   string `json:"senderId"`
	Content    string `json:"content"`
}

// Handler consumes envelopes in bus order
type Handler func(Envelope)

// Broker carries publishes between hub instances. Every subscribed handler,
// including the publisher's own, observes envelopes in the same order.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

var (
	ErrClosed            = errors.New("broker is closed")
	ErrAlreadySubscribed = errors.New("broker already has a subscriber")
)
