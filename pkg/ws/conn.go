// Package ws adapts a gorilla websocket connection into a notification
// session. Writes are serialized: gorilla allows at most one concurrent
// writer per connection.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ridecore/internal/domain/types"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// envelope is the wire shape of every outbound frame.
type envelope struct {
	Event types.RideEvent `json:"event"`
	Data  any             `json:"data"`
}

type Conn struct {
	conn    *websocket.Conn
	doneCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

func NewConn(ctx context.Context, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:    conn,
		doneCtx: ctx,
		cancel:  cancel,
	}
}

// Deliver sends one event frame. Calls on a single connection are delivered
// in the order they are made.
func (c *Conn) Deliver(event types.RideEvent, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.health(); err != nil {
		return fmt.Errorf("deliver failed: %w", err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteJSON(envelope{Event: event, Data: payload})
}

func (c *Conn) health() error {
	if c.conn == nil {
		return errors.New("connection is nil")
	}
	select {
	case <-c.doneCtx.Done():
		return errors.New("connection closed")
	default:
	}
	return nil
}

// KeepAlive pings the peer until the connection is closed. Run it in its own
// goroutine; it returns on the first failed ping.
func (c *Conn) KeepAlive() error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.doneCtx.Done():
			return nil
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte("ping"),
				time.Now().Add(writeWait),
			)
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// Wait blocks until the peer closes the connection or sends an unreadable
// frame. Inbound payloads are discarded: the protocol is push-only.
func (c *Conn) Wait() error {
	for {
		select {
		case <-c.doneCtx.Done():
			return nil
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
