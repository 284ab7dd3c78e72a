package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, b *fakeBackend, participantID string) *Channel {
	t.Helper()
	ch, err := Dial(context.Background(), b.server.URL, participantID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func subscribe(t *testing.T, ch *Channel, exerciseID string) (string, *Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	content, sub, err := ch.Subscribe(ctx, exerciseID)
	require.NoError(t, err)
	return content, sub
}

func nextUpdate(t *testing.T, sub *Subscription) string {
	t.Helper()
	select {
	case content, ok := <-sub.Updates():
		require.True(t, ok, "update stream closed")
		return content
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update")
		return ""
	}
}

func assertNoUpdate(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case content, ok := <-sub.Updates():
		if ok {
			t.Fatalf("unexpected update %q", content)
		}
	case <-time.After(wait):
	}
}

func TestChannel_SubscribeReturnsCurrentContent(t *testing.T) {
	b := newFakeBackend(t)
	ch := dial(t, b, "alice")

	content, sub := subscribe(t, ch, "abc123")
	assert.Equal(t, "// start", content)
	assert.Equal(t, "abc123", sub.ExerciseID())
}

func TestChannel_PublishReachesOthersNotSender(t *testing.T) {
	b := newFakeBackend(t)
	student := dial(t, b, "student")
	mentor := dial(t, b, "mentor")

	_, studentSub := subscribe(t, student, "abc123")
	_, mentorSub := subscribe(t, mentor, "abc123")

	require.NoError(t, student.Publish(context.Background(), "abc123", "return 1;"))

	assert.Equal(t, "return 1;", nextUpdate(t, mentorSub))
	assertNoUpdate(t, studentSub, 200*time.Millisecond)

	// a late subscriber starts from the authoritative content
	late := dial(t, b, "late")
	content, _ := subscribe(t, late, "abc123")
	assert.Equal(t, "return 1;", content)
}

func TestChannel_ScopedByExercise(t *testing.T) {
	b := newFakeBackend(t)
	publisher := dial(t, b, "p")
	watcherA := dial(t, b, "a")
	watcherB := dial(t, b, "b")

	_, subA := subscribe(t, watcherA, "abc123")
	_, subB := subscribe(t, watcherB, "xyz")

	require.NoError(t, publisher.Publish(context.Background(), "abc123", "only abc"))

	assert.Equal(t, "only abc", nextUpdate(t, subA))
	assertNoUpdate(t, subB, 200*time.Millisecond)
}

func TestChannel_OrderedDelivery(t *testing.T) {
	b := newFakeBackend(t)
	publisher := dial(t, b, "p")
	watcher := dial(t, b, "w")
	_, sub := subscribe(t, watcher, "abc123")

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, publisher.Publish(context.Background(), "abc123", fmt.Sprintf("v%d", i)))
	}

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("v%d", i), nextUpdate(t, sub))
	}
}

func TestChannel_UnsubscribeIsIdempotent(t *testing.T) {
	b := newFakeBackend(t)
	ch := dial(t, b, "alice")
	_, sub := subscribe(t, ch, "abc123")

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("updates not closed after unsubscribe")
	}

	assert.Eventually(t, func() bool {
		return b.hub.Stats().Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)

	// resubscribing on the same channel works
	content, _ := subscribe(t, ch, "abc123")
	assert.Equal(t, "// start", content)
}

func TestChannel_SubscribeErrors(t *testing.T) {
	b := newFakeBackend(t)
	ch := dial(t, b, "alice")
	ctx := context.Background()

	_, _, err := ch.Subscribe(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	subscribe(t, ch, "abc123")
	_, _, err = ch.Subscribe(ctx, "abc123")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	err = ch.Publish(ctx, "bad id!", "x")
	assert.Error(t, err)
}

func TestChannel_RejectedPublishDoesNotFailSubscribe(t *testing.T) {
	b := newRateLimitedBackend(t, 1)
	ch := dial(t, b, "alice")
	ctx := context.Background()

	require.NoError(t, ch.Publish(ctx, "abc123", "first"))
	// over the limit; the hub answers with an error event scoped to xyz
	require.NoError(t, ch.Publish(ctx, "xyz", "second"))

	content, sub := subscribe(t, ch, "xyz")
	assert.Equal(t, "other seed", content)

	select {
	case err := <-ch.Errors():
		var hubErr *HubError
		require.ErrorAs(t, err, &hubErr)
		assert.Equal(t, "xyz", hubErr.ExerciseID)
		assert.Equal(t, "rate limit exceeded", hubErr.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("rejected publish was not reported")
	}

	// the subscription stays registered on the hub
	bob := dial(t, b, "bob")
	require.NoError(t, bob.Publish(ctx, "xyz", "from bob"))
	assert.Equal(t, "from bob", nextUpdate(t, sub))
}

func TestChannel_CloseEndsSubscriptions(t *testing.T) {
	b := newFakeBackend(t)
	ch := dial(t, b, "alice")
	_, sub := subscribe(t, ch, "abc123")

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after Close")
	}

	_, _, err := ch.Subscribe(context.Background(), "xyz")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, ch.Publish(context.Background(), "abc123", "x"), ErrChannelClosed)
}

func TestChannel_ServerLossEndsSubscriptions(t *testing.T) {
	b := newFakeBackend(t)
	ch := dial(t, b, "alice")
	_, sub := subscribe(t, ch, "abc123")

	b.registry.CloseAll()

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after connection loss")
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after connection loss")
	}
}

func TestDial_Unavailable(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
}
