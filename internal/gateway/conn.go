package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grimoire-app/app-library/internal/models"
)

// connState is the per-connection lifecycle: connected (no session), joined
// (bound to a session) and closed, which is absorbing.
type connState int

const (
	stateConnected connState = iota
	stateJoined
	stateClosed
)

const sendBuffer = 64

// connection wraps one websocket client. All writes go through the send
// channel so the write pump is the only goroutine touching the socket for
// output; reads happen only on the read pump.
type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan models.Envelope

	mu        sync.Mutex
	state     connState
	sessionID string

	closeOnce sync.Once
}

func newConnection(id, userID string, ws *websocket.Conn) *connection {
	return &connection{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan models.Envelope, sendBuffer),
	}
}

// join binds the connection to a session. Returns false when the connection
// is already joined or closed.
func (c *connection) join(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return false
	}
	c.state = stateJoined
	c.sessionID = sessionID
	return true
}

// close transitions to the terminal state, returning the session the
// connection was joined to at the time, if any.
func (c *connection) close() (sessionID string, wasJoined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateJoined {
		sessionID, wasJoined = c.sessionID, true
	}
	c.state = stateClosed
	c.sessionID = ""
	return sessionID, wasJoined
}

func (c *connection) session() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.state == stateJoined
}

// enqueue hands a message to the write pump. Best-effort: a closed connection
// or a full send buffer drops the message rather than blocking the caller.
func (c *connection) enqueue(env models.Envelope) bool {
	// The lock is held across the send so close cannot close the channel
	// between the state check and the send. The send itself never blocks.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// writePump owns all socket writes: queued messages plus the heartbeat ping.
// It exits when the send channel closes or a write fails.
func (c *connection) writePump(pingPeriod, writeWait time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
