package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codeblocks/pkg/types"
)

// writeWait bounds a single frame write
const writeWait = 10 * time.Second

type subscribeResult struct {
	content string
	sub     *Subscription
	err     error
}

// Channel is one persistent connection to the hub. Subscriptions are keyed by
// exercise id, so one Channel can follow several exercises.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	waiters map[string]chan subscribeResult
	closed  bool

	errs chan error
	done chan struct{}
}

// Dial connects to the hub at baseURL (http or ws scheme) as participantID
func Dial(ctx context.Context, baseURL, participantID string) (*Channel, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	query := u.Query()
	if participantID != "" {
		query.Set("participant", participantID)
	}
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c := &Channel{
		conn:    conn,
		subs:    make(map[string]*Subscription),
		waiters: make(map[string]chan subscribeResult),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Subscribe follows exerciseID and returns its current content. Updates from
// other participants arrive on the returned Subscription.
func (c *Channel) Subscribe(ctx context.Context, exerciseID string) (string, *Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", nil, ErrChannelClosed
	}
	if _, ok := c.subs[exerciseID]; ok {
		c.mu.Unlock()
		return "", nil, ErrAlreadySubscribed
	}
	if _, ok := c.waiters[exerciseID]; ok {
		c.mu.Unlock()
		return "", nil, ErrAlreadySubscribed
	}
	waiter := make(chan subscribeResult, 1)
	c.waiters[exerciseID] = waiter
	c.mu.Unlock()

	if err := c.send(types.Event{Event: types.EventSubscribe, ExerciseID: exerciseID}); err != nil {
		c.dropWaiter(exerciseID, waiter)
		return "", nil, err
	}

	select {
	case res := <-waiter:
		return res.content, res.sub, res.err
	case <-ctx.Done():
		c.dropWaiter(exerciseID, waiter)
		// a snapshot racing the cancellation may already have registered
		// a subscription; release it on the hub as well
		select {
		case res := <-waiter:
			if res.sub != nil {
				res.sub.Unsubscribe()
			}
		default:
		}
		return "", nil, ctx.Err()
	}
}

// Publish replaces the content of exerciseID for every other subscriber
func (c *Channel) Publish(ctx context.Context, exerciseID, content string) error {
	event := types.Event{Event: types.EventCodeChange, ExerciseID: exerciseID, Code: content}
	if err := event.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(event)
}

// Errors carries hub error events not tied to a pending subscribe
func (c *Channel) Errors() <-chan error {
	return c.errs
}

// Done is closed when the connection is lost or closed
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection and every subscription on it; idempotent
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Channel) send(event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Channel) dropWaiter(exerciseID string, waiter chan subscribeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters[exerciseID] == waiter {
		delete(c.waiters, exerciseID)
	}
}

// readLoop owns every inbound frame. Closing it ends every subscription.
func (c *Channel) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.reportError(fmt.Errorf("malformed event from hub: %w", err))
			continue
		}
		c.handle(event)
	}
}

func (c *Channel) handle(event types.Event) {
	switch event.Event {
	case types.EventSnapshot:
		c.mu.Lock()
		waiter, ok := c.waiters[event.ExerciseID]
		if !ok {
			_, live := c.subs[event.ExerciseID]
			c.mu.Unlock()
			if !live {
				// the subscribe was abandoned; release the hub registration
				_ = c.send(types.Event{Event: types.EventUnsubscribe, ExerciseID: event.ExerciseID})
			}
			return
		}
		delete(c.waiters, event.ExerciseID)
		// registered before the waiter wakes so no later update is missed
		sub := newSubscription(c, event.ExerciseID)
		c.subs[event.ExerciseID] = sub
		c.mu.Unlock()
		waiter <- subscribeResult{content: event.Code, sub: sub}

	case types.EventCodeUpdate:
		c.mu.Lock()
		sub, ok := c.subs[event.ExerciseID]
		c.mu.Unlock()
		if ok {
			sub.push(event.Code)
		}

	case types.EventError:
		hubErr := &HubError{ExerciseID: event.ExerciseID, Message: event.Message}
		if event.Request != types.EventSubscribe {
			c.reportError(hubErr)
			return
		}
		c.mu.Lock()
		waiter, ok := c.waiters[event.ExerciseID]
		if ok {
			delete(c.waiters, event.ExerciseID)
		}
		c.mu.Unlock()
		if ok {
			waiter <- subscribeResult{err: subscribeError(hubErr)}
			return
		}
		c.reportError(hubErr)
	}
}

// subscribeError maps a hub refusal onto the client taxonomy
func subscribeError(hubErr *HubError) error {
	if hubErr.Message == ErrNotFound.Error() {
		return fmt.Errorf("%w: %s", ErrNotFound, hubErr.ExerciseID)
	}
	return hubErr
}

func (c *Channel) reportError(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Channel) shutdown() {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	waiters := c.waiters
	c.subs = make(map[string]*Subscription)
	c.waiters = make(map[string]chan subscribeResult)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	for _, waiter := range waiters {
		waiter <- subscribeResult{err: ErrChannelClosed}
	}
	_ = c.conn.Close()
	close(c.done)
}

func (c *Channel) forget(sub *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.exerciseID] != sub {
		return false
	}
	delete(c.subs, sub.exerciseID)
	return true
}

// Subscription is the live update stream of one exercise
type Subscription struct {
	channel    *Channel
	exerciseID string

	mu     sync.Mutex
	queue  []string
	signal chan struct{}
	out    chan string
	done   chan struct{}
	once   sync.Once
}

func newSubscription(c *Channel, exerciseID string) *Subscription {
	s := &Subscription{
		channel:    c,
		exerciseID: exerciseID,
		signal:     make(chan struct{}, 1),
		out:        make(chan string),
		done:       make(chan struct{}),
	}
	go s.pump()
	return s
}

// ExerciseID returns the followed exercise
func (s *Subscription) ExerciseID() string {
	return s.exerciseID
}

// Updates yields every received content snapshot in hub order. It is closed
// after Unsubscribe or when the connection is lost.
func (s *Subscription) Updates() <-chan string {
	return s.out
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe ends the stream immediately and releases the hub registration; idempotent
func (s *Subscription) Unsubscribe() {
	if s.channel.forget(s) {
		_ = s.channel.send(types.Event{Event: types.EventUnsubscribe, ExerciseID: s.exerciseID})
	}
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// push queues without blocking the read loop; the queue is unbounded
func (s *Subscription) push(content string) {
	s.mu.Lock()
	s.queue = append(s.queue, content)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, content := range batch {
			select {
			case s.out <- content:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.signal:
		case <-s.done:
			return
		}
	}
}
