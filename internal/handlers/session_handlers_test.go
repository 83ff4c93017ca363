package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-app/app-library/internal/gateway"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/session"
)

type noopAnnotationStore struct{}

func (noopAnnotationStore) CreateAnnotation(ctx context.Context, a *models.Annotation) error { return nil }
func (noopAnnotationStore) UpdateAnnotation(ctx context.Context, a *models.Annotation) error { return nil }
func (noopAnnotationStore) DeleteAnnotation(ctx context.Context, id string) error            { return nil }

func newSessionTestRouter(t *testing.T) (*gin.Engine, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := session.NewRegistry(session.NewMemoryStore(time.Minute), nil)
	gw := gateway.New(registry, noopAnnotationStore{}, 30*time.Second, nil)
	h := NewSessionHandler(registry, gw, nil)

	router := gin.New()
	router.POST("/sessions", h.Create)
	router.GET("/sessions/:id", h.Get)
	router.POST("/sessions/:id/refresh", h.Refresh)
	router.DELETE("/sessions/:id", h.End)
	return router, registry
}

func TestSessionCreateEndpoint(t *testing.T) {
	router, registry := newSessionTestRouter(t)

	body := `{"document_id":"doc-1","presenter_id":"dm-1","settings":{"sync_page":false}}`
	w := doJSON(router, "POST", "/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.Settings.SyncPage)
	assert.True(t, sess.Settings.SyncScroll, "unset fields keep their defaults")

	stored, err := registry.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "dm-1", stored.PresenterID)
}

func TestSessionCreateEndpoint_MissingFields(t *testing.T) {
	router, _ := newSessionTestRouter(t)

	w := doJSON(router, "POST", "/sessions", `{"document_id":"doc-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionGetEndpoint(t *testing.T) {
	router, registry := newSessionTestRouter(t)

	sess, err := registry.Create(context.Background(), "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	w := doJSON(router, "GET", "/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sess.ID, resp.Session.ID)
	assert.Zero(t, resp.Connections, "no websocket clients attached")

	w = doJSON(router, "GET", "/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionEndEndpoint(t *testing.T) {
	router, registry := newSessionTestRouter(t)

	sess, err := registry.Create(context.Background(), "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	w := doJSON(router, "DELETE", "/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = registry.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionRefreshEndpoint(t *testing.T) {
	router, registry := newSessionTestRouter(t)

	sess, err := registry.Create(context.Background(), "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	w := doJSON(router, "POST", "/sessions/"+sess.ID+"/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
