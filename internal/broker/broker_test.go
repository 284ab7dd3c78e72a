package broker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recorder) handle(env Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envs...)
}

func TestBroker_Implementations(t *testing.T) {
	var _ Broker = (*Memory)(nil)
	var _ Broker = (*Redis)(nil)
}

func TestMemory_DeliversToEveryHandlerInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, b := &recorder{}, &recorder{}
	require.NoError(t, m.Subscribe(ctx, a.handle))
	require.NoError(t, m.Subscribe(ctx, b.handle))

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Publish(ctx, Envelope{ExerciseID: "ex1", SenderID: "s", Content: fmt.Sprint(i)}))
	}

	assert.Equal(t, a.snapshot(), b.snapshot())
	require.Len(t, a.snapshot(), 5)
	for i, env := range a.snapshot() {
		assert.Equal(t, fmt.Sprint(i), env.Content)
	}
}

func TestMemory_Close(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Publish(ctx, Envelope{ExerciseID: "ex1"}), ErrClosed)
	assert.ErrorIs(t, m.Subscribe(ctx, func(Envelope) {}), ErrClosed)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewMemory().Publish(ctx, Envelope{ExerciseID: "ex1"}))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "codeblocks:exercise:closures", ChannelName("closures"))
}

// TestRedis_RoundTrip needs a reachable server in CODEBLOCKS_TEST_REDIS_ADDR
func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("CODEBLOCKS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CODEBLOCKS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	first, err := NewRedis(ctx, &redis.Options{Addr: addr}, logger)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewRedis(ctx, &redis.Options{Addr: addr}, logger)
	require.NoError(t, err)
	defer second.Close()

	a, b := &recorder{}, &recorder{}
	require.NoError(t, first.Subscribe(ctx, a.handle))
	require.NoError(t, second.Subscribe(ctx, b.handle))
	assert.ErrorIs(t, first.Subscribe(ctx, a.handle), ErrAlreadySubscribed)

	exercise := fmt.Sprintf("redis-test-%d", time.Now().UnixNano())
	for i := 0; i < 3; i++ {
		require.NoError(t, first.Publish(ctx, Envelope{ExerciseID: exercise, SenderID: "s1", Content: fmt.Sprint(i)}))
	}

	only := func(r *recorder) []Envelope {
		var out []Envelope
		for _, env := range r.snapshot() {
			if env.ExerciseID == exercise {
				out = append(out, env)
			}
		}
		return out
	}

	for _, r := range []*recorder{a, b} {
		require.Eventually(t, func() bool { return len(only(r)) == 3 }, 2*time.Second, 10*time.Millisecond)
		for i, env := range only(r) {
			assert.Equal(t, fmt.Sprint(i), env.Content)
		}
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedis(ctx, &redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
