package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/session"
)

// fakeAnnotationStore records persisted annotations.
type fakeAnnotationStore struct {
	mu      sync.Mutex
	created []models.Annotation
	deleted []string
}

func (s *fakeAnnotationStore) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *a)
	return nil
}

func (s *fakeAnnotationStore) UpdateAnnotation(ctx context.Context, a *models.Annotation) error {
	return nil
}

func (s *fakeAnnotationStore) DeleteAnnotation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

type testRig struct {
	gateway     *Gateway
	registry    *session.Registry
	annotations *fakeAnnotationStore
	server      *httptest.Server
}

func newTestRig(t *testing.T, heartbeat time.Duration) *testRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := session.NewRegistry(session.NewMemoryStore(time.Minute), nil)
	annotations := &fakeAnnotationStore{}
	gw := New(registry, annotations, heartbeat, nil)

	router := gin.New()
	router.GET("/ws", gw.HandleWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testRig{gateway: gw, registry: registry, annotations: annotations, server: server}
}

func (r *testRig) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType models.EventType, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.NewEnvelope(eventType, payload)))
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func expectEvent(t *testing.T, conn *websocket.Conn, eventType models.EventType) models.Envelope {
	t.Helper()
	env := readEvent(t, conn)
	require.Equal(t, eventType, env.Type, "unexpected event: %s", env.Data)
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env models.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "expected no event, got %s: %s", env.Type, env.Data)
}

// createSession drives the session-create handshake and returns the session.
func createSession(t *testing.T, conn *websocket.Conn, settings *models.SyncSettingsPatch) models.Session {
	t.Helper()
	send(t, conn, models.EventSessionCreate, models.SessionCreatePayload{
		DocumentID: "doc-1",
		CampaignID: "campaign-1",
		Settings:   settings,
	})
	env := expectEvent(t, conn, models.EventSessionCreated)
	var sess models.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return sess
}

// joinSession attaches a second connection and drains the join broadcast on
// the presenter side.
func joinSession(t *testing.T, presenter, viewer *websocket.Conn, sessionID string) {
	t.Helper()
	send(t, viewer, models.EventSessionJoin, models.SessionJoinPayload{SessionID: sessionID})
	expectEvent(t, viewer, models.EventSessionJoined)
	expectEvent(t, presenter, models.EventSessionJoined)
}

func TestGateway_CreateAndJoin(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")

	sess := createSession(t, dm, nil)
	assert.Equal(t, "dm-1", sess.PresenterID)
	assert.Equal(t, "doc-1", sess.DocumentID)

	joinSession(t, dm, player, sess.ID)

	stored, err := rig.registry.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"player-1"}, stored.Viewers)
	assert.Equal(t, 2, rig.gateway.SessionConnections(sess.ID))
}

func TestGateway_JoinUnknownSession(t *testing.T) {
	rig := newTestRig(t, time.Second)
	player := rig.dial(t, "player-1")

	send(t, player, models.EventSessionJoin, models.SessionJoinPayload{SessionID: "ghost"})
	env := expectEvent(t, player, models.EventError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Contains(t, payload.Message, "not found")
}

func TestGateway_PageChangeBroadcastsWithoutEcho(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventPageChange, models.PageChangePayload{Page: 7})

	env := expectEvent(t, dm, models.EventPageChanged)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, float64(7), got["page"])
	assert.Equal(t, "player-1", got["user_id"])

	// The originator gets no echo.
	expectSilence(t, player)

	stored, err := rig.registry.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.CurrentPage)
}

func TestGateway_SyncGateSuppressesBroadcast(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")

	off := false
	sess := createSession(t, dm, &models.SyncSettingsPatch{SyncPage: &off})
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventPageChange, models.PageChangePayload{Page: 3})
	expectSilence(t, dm)

	// State still updates even though the broadcast was suppressed.
	stored, err := rig.registry.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CurrentPage)

	// Scroll sync is a separate flag and still broadcasts.
	send(t, player, models.EventScrollSync, models.ScrollSyncPayload{Position: 0.4})
	expectEvent(t, dm, models.EventScrollSynced)
}

func TestGateway_PresenterPushBypassesSyncGate(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")

	off := false
	sess := createSession(t, dm, &models.SyncSettingsPatch{SyncPage: &off})
	joinSession(t, dm, player, sess.ID)

	send(t, dm, models.EventPushPage, models.PageChangePayload{Page: 12})
	env := expectEvent(t, player, models.EventPagePushed)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, float64(12), got["page"])
}

func TestGateway_OnlyPresenterCanPush(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventPushReference, models.PushReferencePayload{DocumentID: "doc-9"})
	expectEvent(t, player, models.EventError)
	expectSilence(t, dm)
}

func TestGateway_AnnotationPersistedThenBroadcast(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventAnnotationCreate, models.AnnotationPayload{
		Annotation: models.Annotation{DocumentID: "doc-1", Page: 4, Kind: "note", Content: "trap here"},
	})

	// Annotation events go to everyone, originator included.
	dmEnv := expectEvent(t, dm, models.EventAnnotationCreated)
	expectEvent(t, player, models.EventAnnotationCreated)

	var payload models.AnnotationPayload
	require.NoError(t, json.Unmarshal(dmEnv.Data, &payload))
	assert.NotEmpty(t, payload.Annotation.ID)
	assert.Equal(t, "player-1", payload.Annotation.AuthorID)
	assert.Equal(t, sess.ID, payload.Annotation.SessionID)

	rig.annotations.mu.Lock()
	defer rig.annotations.mu.Unlock()
	require.Len(t, rig.annotations.created, 1)
	assert.Equal(t, "trap here", rig.annotations.created[0].Content)
}

func TestGateway_UnknownTypeScopedError(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventType("teleport"), nil)
	expectEvent(t, player, models.EventError)
	expectSilence(t, dm)
}

func TestGateway_RequiresJoinForNavigation(t *testing.T) {
	rig := newTestRig(t, time.Second)
	player := rig.dial(t, "player-1")

	send(t, player, models.EventPageChange, models.PageChangePayload{Page: 2})
	env := expectEvent(t, player, models.EventError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Contains(t, payload.Message, "not in a session")
}

func TestGateway_DisconnectCleansUpAndNotifies(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	player.Close()

	env := expectEvent(t, dm, models.EventSessionLeft)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "player-1", got["user_id"])

	// Viewer entry and connection set are both cleaned up.
	require.Eventually(t, func() bool {
		stored, err := rig.registry.Get(context.Background(), sess.ID)
		return err == nil && len(stored.Viewers) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rig.gateway.SessionConnections(sess.ID))
}

func TestGateway_ExplicitLeaveClosesConnection(t *testing.T) {
	rig := newTestRig(t, time.Second)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	send(t, player, models.EventSessionLeave, nil)

	expectEvent(t, dm, models.EventSessionLeft)

	// The leaving connection is closed by the gateway.
	player.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := player.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 1, rig.gateway.SessionConnections(sess.ID))
}

func TestGateway_HeartbeatTerminatesUnresponsiveConnection(t *testing.T) {
	rig := newTestRig(t, 60*time.Millisecond)
	dm := rig.dial(t, "dm-1")
	player := rig.dial(t, "player-1")
	sess := createSession(t, dm, nil)
	joinSession(t, dm, player, sess.ID)

	// A player that swallows pings without ponging misses the deadline.
	player.SetPingHandler(func(string) error { return nil })

	player.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := player.ReadMessage()
	require.Error(t, err, "server should force-close the silent connection")

	// The forced close runs the same cleanup as a disconnect.
	expectEvent(t, dm, models.EventSessionLeft)
}
