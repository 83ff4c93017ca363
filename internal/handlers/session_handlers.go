package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/gateway"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/session"
)

// SessionHandler bridges the admin surface to the session registry. Realtime
// clients go through the websocket gateway instead; this exists for
// inspection and out-of-band session management.
type SessionHandler struct {
	registry *session.Registry
	gateway  *gateway.Gateway
	logger   *logging.SafeLogger
}

// NewSessionHandler creates the session admin handler.
func NewSessionHandler(registry *session.Registry, gw *gateway.Gateway, logger *logging.SafeLogger) *SessionHandler {
	return &SessionHandler{registry: registry, gateway: gw, logger: logger}
}

// Create starts a session without a websocket connection, e.g. from the
// admin UI ahead of a scheduled game.
func (h *SessionHandler) Create(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateSession")
	defer span.End()

	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.String("document.id", req.DocumentID))

	var settings *models.SyncSettings
	if req.Settings != nil {
		s := models.DefaultSyncSettings()
		if req.Settings.SyncScroll != nil {
			s.SyncScroll = *req.Settings.SyncScroll
		}
		if req.Settings.SyncPage != nil {
			s.SyncPage = *req.Settings.SyncPage
		}
		if req.Settings.SyncHighlight != nil {
			s.SyncHighlight = *req.Settings.SyncHighlight
		}
		settings = &s
	}

	sess, err := h.registry.Create(ctx, req.DocumentID, req.CampaignID, req.RoomCode, req.PresenterID, settings)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// Get returns a session with its live connection count.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	sess, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch session"})
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		Session:     sess,
		Connections: h.gateway.SessionConnections(id),
	})
}

// Refresh extends a session's TTL without mutating it.
func (h *SessionHandler) Refresh(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to refresh session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// End deletes a session.
func (h *SessionHandler) End(c *gin.Context) {
	if err := h.registry.End(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to end session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}
