package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeblocks/pkg/types"
)

// Options tune connection heartbeat and buffering
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions mirror the configuration defaults
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

// Connection wraps one websocket and speaks for one participant
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions,
// so every write goes through writeCh to a single writer goroutine
type Connection struct {
	conn          *websocket.Conn
	id            string
	participantID string
	writeCh       chan []byte
	writeTimeout  time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
}

// NewConnection starts the writer goroutine for conn
func NewConnection(conn *websocket.Conn, participantID string, opts Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:          conn,
		id:            uuid.New().String(),
		participantID: participantID,
		writeCh:       make(chan []byte, opts.BufferSize),
		writeTimeout:  opts.WriteTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v, waiting up to the write timeout for buffer space
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Deliver queues a hub update without blocking. A connection whose buffer is
// full has fallen behind the room; it is closed so the client resubscribes
// and takes the current content as its new baseline.
func (c *Connection) Deliver(update types.Update) error {
	data, err := json.Marshal(update.Event())
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// Close is idempotent
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) SubscriberID() string {
	return c.id
}

func (c *Connection) GetConnectionID() string {
	return c.id
}

func (c *Connection) GetParticipantID() string {
	return c.participantID
}
