package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"weather-stream/generator"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by Send once the connection is closed
var ErrConnectionClosed = fmt.Errorf("%w: connection closed", generator.ErrSinkClosed)

// Connection is one accepted WebSocket together with the generator that
// feeds it. The generator never outlives the connection.
type Connection struct {
	ID         uuid.UUID
	RemoteAddr string
	AcceptedAt time.Time

	conn         *websocket.Conn
	writeTimeout time.Duration
	gen          *generator.Generator

	// mu guards closed and serializes check-then-write
	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, writeTimeout time.Duration) *Connection {
	return &Connection{
		ID:           uuid.New(),
		RemoteAddr:   conn.RemoteAddr().String(),
		AcceptedAt:   time.Now(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes one text frame. It returns ErrConnectionClosed without
// writing if the connection is closed or ctx is done.
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || ctx.Err() != nil {
		return ErrConnectionClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ping sends a keepalive control frame
func (c *Connection) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// goingAway tells the peer the server is shutting down
func (c *Connection) goingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
}

// close tears the connection down exactly once. The generator is canceled
// first, the socket is closed to unblock any in-flight write, the closed
// flag is set under the send lock, and finally the generator loop is
// awaited. It reports whether this call performed the teardown.
func (c *Connection) close() bool {
	done := false
	c.closeOnce.Do(func() {
		if c.gen != nil {
			c.gen.Cancel()
		}
		_ = c.conn.Close()

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.gen != nil {
			c.gen.Wait()
		}
		done = true
	})
	return done
}
