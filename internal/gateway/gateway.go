package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/documents"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/observability"
	"github.com/grimoire-app/app-library/internal/session"
)

const writeWait = 10 * time.Second

// Gateway terminates websocket connections and fans session events out to
// their participants. One read pump and one write pump per connection; a
// connection's inbound messages are handled strictly in arrival order.
type Gateway struct {
	registry    *session.Registry
	annotations documents.AnnotationStore
	upgrader    websocket.Upgrader
	heartbeat   time.Duration
	logger      *logging.SafeLogger

	mu       sync.RWMutex
	sessions map[string]map[*connection]struct{}
}

// New creates a gateway over the session registry and annotation store.
// heartbeat is the ping interval; a connection missing a pong for a full
// cycle is forcibly closed.
func New(registry *session.Registry, annotations documents.AnnotationStore, heartbeat time.Duration, logger *logging.SafeLogger) *Gateway {
	return &Gateway{
		registry:    registry,
		annotations: annotations,
		heartbeat:   heartbeat,
		logger:      logger,
		sessions:    make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS layer in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request to a websocket connection and runs its
// pumps. The user identity comes from the handshake query.
func (g *Gateway) HandleWS(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConnection(uuid.NewString(), userID, ws)
	observability.ActiveConnections.Inc()
	g.logger.Debug("connection opened",
		zap.String("conn_id", conn.id),
		zap.String("user_id", userID))

	go conn.writePump(g.heartbeat, writeWait)
	g.readPump(conn)
}

// readPump consumes inbound messages until the socket dies, then runs the
// disconnect cleanup. The pong deadline gives a connection one full heartbeat
// cycle to answer a ping before it is terminated.
func (g *Gateway) readPump(conn *connection) {
	pongWait := g.heartbeat * 2
	defer g.closeConnection(conn)

	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("connection read error",
					zap.String("conn_id", conn.id),
					zap.Error(err))
			}
			return
		}
		g.dispatch(conn, raw)
	}
}

// closeConnection is the single disconnect path: state goes terminal, the
// session's connection set and viewer entry are cleaned up and the remainder
// of the session is told about the leave. Cleanup is best-effort, a failing
// registry call never blocks the rest of the sequence.
func (g *Gateway) closeConnection(conn *connection) {
	conn.closeOnce.Do(func() {
		sessionID, wasJoined := conn.close()
		close(conn.send)
		conn.ws.Close()
		observability.ActiveConnections.Dec()

		if !wasJoined {
			return
		}
		g.removeFromSession(sessionID, conn)

		ctx, cancel := cleanupContext()
		defer cancel()
		if _, err := g.registry.RemoveViewer(ctx, sessionID, conn.userID); err != nil {
			g.logger.Warn("failed to remove viewer on disconnect",
				zap.String("session_id", sessionID),
				zap.String("user_id", conn.userID),
				zap.Error(err))
		}

		g.Broadcast(sessionID, models.NewEnvelope(models.EventSessionLeft, gin.H{
			"session_id": sessionID,
			"user_id":    conn.userID,
		}), nil)
		g.logger.Debug("connection closed",
			zap.String("conn_id", conn.id),
			zap.String("session_id", sessionID))
	})
}

// Broadcast sends an envelope to every joined connection of the session
// except the optionally excluded originator. Delivery is best-effort: slow or
// dying connections are skipped, never retried.
func (g *Gateway) Broadcast(sessionID string, env models.Envelope, exclude *connection) {
	g.mu.RLock()
	conns := make([]*connection, 0, len(g.sessions[sessionID]))
	for conn := range g.sessions[sessionID] {
		if conn != exclude {
			conns = append(conns, conn)
		}
	}
	g.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if conn.enqueue(env) {
			sent++
		}
	}
	if sent > 0 {
		observability.BroadcastsSent.WithLabelValues(string(env.Type)).Add(float64(sent))
	}
}

// SessionConnections reports how many connections are attached to a session.
func (g *Gateway) SessionConnections(sessionID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions[sessionID])
}

func (g *Gateway) addToSession(sessionID string, conn *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.sessions[sessionID]
	if !ok {
		set = make(map[*connection]struct{})
		g.sessions[sessionID] = set
	}
	set[conn] = struct{}{}
}

func (g *Gateway) removeFromSession(sessionID string, conn *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(g.sessions, sessionID)
	}
}
