package broker

import (
	"context"
	"sync"
)

// Memory delivers envelopes synchronously inside one process. Publish holds
// the lock while handlers run, so concurrent publishes are totally ordered.
type Memory struct {
	handlers []Handler
	closed   bool
	mu       sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, h := range m.handlers {
		h(env)
	}
	return nil
}

// Subscribe registers a handler; several hubs may share one Memory broker
func (m *Memory) Subscribe(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.handlers = append(m.handlers, handler)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.handlers = nil
	return nil
}
