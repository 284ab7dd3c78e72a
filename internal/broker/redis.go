package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "codeblocks:exercise:"

// ChannelName returns the Redis pub/sub channel of one exercise
func ChannelName(exerciseID string) string {
	return channelPrefix + exerciseID
}

// Redis fans envelopes out through Redis pub/sub so several server
// instances share rooms. Redis delivers one channel's messages in publish
// order to every subscriber.
type Redis struct {
	client *redis.Client
	logger *zap.SugaredLogger
	pubsub *redis.PubSub
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, opts *redis.Options, logger *zap.SugaredLogger) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Infow("redis broker connected", "addr", opts.Addr, "db", opts.DB)
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, ChannelName(env.ExerciseID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe pattern-subscribes to every exercise channel and runs handler
// from a single goroutine until Close
func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.pubsub != nil {
		return ErrAlreadySubscribed
	}

	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	// TECHNICAL DISCOVERY: Receive blocks until the subscription is confirmed,
	// so no publish issued after Subscribe returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	r.pubsub = pubsub

	messages := pubsub.Channel()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range messages {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warnw("dropping malformed envelope", "channel", msg.Channel, "error", err)
				continue
			}
			if env.ExerciseID == "" {
				env.ExerciseID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			handler(env)
		}
	}()

	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pubsub := r.pubsub
	r.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
	}
	r.wg.Wait()
	return r.client.Close()
}
