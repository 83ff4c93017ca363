package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/observability"
)

const handlerTimeout = 10 * time.Second

func cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// dispatch routes one inbound message to its handler. Errors are always
// scoped to the originating connection; nothing here can take down a session.
func (g *Gateway) dispatch(conn *connection, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		observability.EventsRejected.WithLabelValues("malformed_envelope").Inc()
		g.sendError(conn, "malformed message", err)
		return
	}

	ctx, cancel := cleanupContext()
	defer cancel()

	switch env.Type {
	case models.EventSessionCreate:
		g.handleSessionCreate(ctx, conn, env.Data)
	case models.EventSessionJoin:
		g.handleSessionJoin(ctx, conn, env.Data)
	case models.EventSessionLeave:
		g.handleSessionLeave(conn)
	case models.EventSessionUpdateSettings:
		g.handleUpdateSettings(ctx, conn, env.Data)
	case models.EventPageChange:
		g.handlePageChange(ctx, conn, env.Data)
	case models.EventScrollSync:
		g.handleScrollSync(ctx, conn, env.Data)
	case models.EventPushPage:
		g.handlePushPage(ctx, conn, env.Data)
	case models.EventPushReference:
		g.handlePushReference(ctx, conn, env.Data)
	case models.EventAnnotationCreate:
		g.handleAnnotationCreate(ctx, conn, env.Data)
	case models.EventAnnotationUpdate:
		g.handleAnnotationUpdate(ctx, conn, env.Data)
	case models.EventAnnotationDelete:
		g.handleAnnotationDelete(ctx, conn, env.Data)
	default:
		observability.EventsRejected.WithLabelValues("unknown_type").Inc()
		g.sendError(conn, "unknown event type: "+string(env.Type), nil)
	}
}

func (g *Gateway) handleSessionCreate(ctx context.Context, conn *connection, data json.RawMessage) {
	var payload models.SessionCreatePayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.DocumentID == "" {
		g.rejectPayload(conn, "document_id is required")
		return
	}

	var settings *models.SyncSettings
	if payload.Settings != nil {
		s := models.DefaultSyncSettings()
		applyPatch(&s, *payload.Settings)
		settings = &s
	}

	sess, err := g.registry.Create(ctx, payload.DocumentID, payload.CampaignID, payload.RoomCode, conn.userID, settings)
	if err != nil {
		g.sendError(conn, "failed to create session", err)
		return
	}

	if !conn.join(sess.ID) {
		g.sendError(conn, "connection is already in a session", nil)
		return
	}
	g.addToSession(sess.ID, conn)
	conn.enqueue(models.NewEnvelope(models.EventSessionCreated, sess))
}

func (g *Gateway) handleSessionJoin(ctx context.Context, conn *connection, data json.RawMessage) {
	var payload models.SessionJoinPayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.SessionID == "" {
		g.rejectPayload(conn, "session_id is required")
		return
	}

	sess, err := g.registry.AddViewer(ctx, payload.SessionID, conn.userID)
	if err != nil {
		g.sendError(conn, "failed to join session", err)
		return
	}
	if sess == nil {
		g.sendError(conn, "session not found", nil)
		return
	}

	if !conn.join(sess.ID) {
		g.sendError(conn, "connection is already in a session", nil)
		return
	}
	g.addToSession(sess.ID, conn)

	conn.enqueue(models.NewEnvelope(models.EventSessionJoined, sess))
	g.Broadcast(sess.ID, models.NewEnvelope(models.EventSessionJoined, gin.H{
		"session_id": sess.ID,
		"user_id":    conn.userID,
	}), conn)
}

// handleSessionLeave is the explicit counterpart of a disconnect; the
// connection transitions to closed either way.
func (g *Gateway) handleSessionLeave(conn *connection) {
	if _, joined := conn.session(); !joined {
		g.sendError(conn, "not in a session", nil)
		return
	}
	g.closeConnection(conn)
}

func (g *Gateway) handleUpdateSettings(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.SettingsUpdatePayload
	if !g.decode(conn, data, &payload) {
		return
	}

	sess, err := g.registry.UpdateSyncSettings(ctx, sessionID, payload.Settings)
	if err != nil || sess == nil {
		g.sendError(conn, "failed to update settings", err)
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventSettingsUpdated, sess.Settings), nil)
}

func (g *Gateway) handlePageChange(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.PageChangePayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.Page < 1 {
		g.rejectPayload(conn, "page must be >= 1")
		return
	}

	sess, err := g.registry.UpdatePage(ctx, sessionID, payload.Page)
	if err != nil || sess == nil {
		g.sendError(conn, "failed to update page", err)
		return
	}
	// Suppressed entirely when page sync is off.
	if !sess.Settings.SyncPage {
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventPageChanged, gin.H{
		"page":    payload.Page,
		"user_id": conn.userID,
	}), conn)
}

func (g *Gateway) handleScrollSync(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.ScrollSyncPayload
	if !g.decode(conn, data, &payload) {
		return
	}

	sess, err := g.registry.UpdateScroll(ctx, sessionID, payload.Position)
	if err != nil || sess == nil {
		g.sendError(conn, "failed to update scroll position", err)
		return
	}
	if !sess.Settings.SyncScroll {
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventScrollSynced, gin.H{
		"position": payload.Position,
		"user_id":  conn.userID,
	}), conn)
}

// handlePushPage forces every viewer to a page. Presenter pushes bypass the
// sync-settings gate.
func (g *Gateway) handlePushPage(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.PageChangePayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.Page < 1 {
		g.rejectPayload(conn, "page must be >= 1")
		return
	}
	if !g.requirePresenter(ctx, conn, sessionID) {
		return
	}

	if _, err := g.registry.UpdatePage(ctx, sessionID, payload.Page); err != nil {
		g.sendError(conn, "failed to push page", err)
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventPagePushed, gin.H{
		"page":    payload.Page,
		"user_id": conn.userID,
	}), conn)
}

func (g *Gateway) handlePushReference(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.PushReferencePayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.DocumentID == "" {
		g.rejectPayload(conn, "document_id is required")
		return
	}
	if !g.requirePresenter(ctx, conn, sessionID) {
		return
	}

	g.Broadcast(sessionID, models.NewEnvelope(models.EventReferencePushed, payload), conn)
}

// Annotation mutations are persisted before they are broadcast, and always
// broadcast regardless of sync settings.
func (g *Gateway) handleAnnotationCreate(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.AnnotationPayload
	if !g.decode(conn, data, &payload) {
		return
	}

	a := payload.Annotation
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.SessionID = sessionID
	a.AuthorID = conn.userID
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := g.annotations.CreateAnnotation(ctx, &a); err != nil {
		g.sendError(conn, "failed to save annotation", err)
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventAnnotationCreated, models.AnnotationPayload{Annotation: a}), nil)
}

func (g *Gateway) handleAnnotationUpdate(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.AnnotationPayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.Annotation.ID == "" {
		g.rejectPayload(conn, "annotation id is required")
		return
	}

	a := payload.Annotation
	a.UpdatedAt = time.Now()
	if err := g.annotations.UpdateAnnotation(ctx, &a); err != nil {
		g.sendError(conn, "failed to update annotation", err)
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventAnnotationUpdated, models.AnnotationPayload{Annotation: a}), nil)
}

func (g *Gateway) handleAnnotationDelete(ctx context.Context, conn *connection, data json.RawMessage) {
	sessionID, ok := g.requireJoined(conn)
	if !ok {
		return
	}
	var payload models.AnnotationDeletePayload
	if !g.decode(conn, data, &payload) {
		return
	}
	if payload.AnnotationID == "" {
		g.rejectPayload(conn, "annotation_id is required")
		return
	}

	if err := g.annotations.DeleteAnnotation(ctx, payload.AnnotationID); err != nil {
		g.sendError(conn, "failed to delete annotation", err)
		return
	}
	g.Broadcast(sessionID, models.NewEnvelope(models.EventAnnotationDeleted, payload), nil)
}

// decode unmarshals an inbound payload, rejecting malformed ones with a
// scoped error.
func (g *Gateway) decode(conn *connection, data json.RawMessage, out interface{}) bool {
	if err := json.Unmarshal(data, out); err != nil {
		observability.EventsRejected.WithLabelValues("malformed_payload").Inc()
		g.sendError(conn, "malformed payload", err)
		return false
	}
	return true
}

func (g *Gateway) requireJoined(conn *connection) (string, bool) {
	sessionID, joined := conn.session()
	if !joined {
		observability.EventsRejected.WithLabelValues("not_joined").Inc()
		g.sendError(conn, "not in a session", nil)
		return "", false
	}
	return sessionID, true
}

func (g *Gateway) requirePresenter(ctx context.Context, conn *connection, sessionID string) bool {
	sess, err := g.registry.Get(ctx, sessionID)
	if err != nil {
		g.sendError(conn, "session not found", err)
		return false
	}
	if sess.PresenterID != conn.userID {
		observability.EventsRejected.WithLabelValues("not_presenter").Inc()
		g.sendError(conn, "only the presenter can push", nil)
		return false
	}
	return true
}

// sendError delivers a scoped error event to the offending connection only.
func (g *Gateway) sendError(conn *connection, msg string, err error) {
	payload := models.ErrorPayload{Message: msg}
	if err != nil {
		payload.Error = err.Error()
	}
	conn.enqueue(models.NewEnvelope(models.EventError, payload))
	g.logger.Debug("rejected realtime message",
		zap.String("conn_id", conn.id),
		zap.String("message", msg),
		zap.Error(err))
}

func (g *Gateway) rejectPayload(conn *connection, msg string) {
	observability.EventsRejected.WithLabelValues("invalid_payload").Inc()
	g.sendError(conn, msg, nil)
}

func applyPatch(s *models.SyncSettings, patch models.SyncSettingsPatch) {
	if patch.SyncScroll != nil {
		s.SyncScroll = *patch.SyncScroll
	}
	if patch.SyncPage != nil {
		s.SyncPage = *patch.SyncPage
	}
	if patch.SyncHighlight != nil {
		s.SyncHighlight = *patch.SyncHighlight
	}
}
