package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-app/app-library/internal/models"
)

func newTestRegistry(ttl time.Duration) *Registry {
	return NewRegistry(NewMemoryStore(ttl), nil)
}

func TestCreate_Defaults(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)

	sess, err := r.Create(ctx, "doc-1", "campaign-1", "", "dm-1", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "doc-1", sess.DocumentID)
	assert.Equal(t, "dm-1", sess.PresenterID)
	assert.Len(t, sess.RoomCode, roomCodeLength)
	assert.Empty(t, sess.Viewers)
	assert.Equal(t, 1, sess.CurrentPage)
	assert.Zero(t, sess.ScrollPosition)
	assert.Equal(t, models.DefaultSyncSettings(), sess.Settings)
}

func TestCreate_ExplicitSettingsAndRoomCode(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)

	settings := models.SyncSettings{SyncScroll: false, SyncPage: true, SyncHighlight: false}
	sess, err := r.Create(ctx, "doc-1", "", "TABLE1", "dm-1", &settings)
	require.NoError(t, err)

	assert.Equal(t, "TABLE1", sess.RoomCode)
	assert.Equal(t, settings, sess.Settings)
}

func TestCreate_RequiresDocumentAndPresenter(t *testing.T) {
	r := newTestRegistry(time.Minute)

	_, err := r.Create(context.Background(), "", "", "", "dm-1", nil)
	assert.Error(t, err)
	_, err = r.Create(context.Background(), "doc-1", "", "", "", nil)
	assert.Error(t, err)
}

func TestGet_MissingSession(t *testing.T) {
	r := newTestRegistry(time.Minute)

	_, err := r.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestAddViewer_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	got, err := r.AddViewer(ctx, sess.ID, "player-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"player-1"}, got.Viewers)

	got, err = r.AddViewer(ctx, sess.ID, "player-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"player-1"}, got.Viewers, "no duplicate entries")

	got, err = r.AddViewer(ctx, sess.ID, "player-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"player-1", "player-2"}, got.Viewers)
}

func TestAddViewer_MissingSessionIsNoop(t *testing.T) {
	r := newTestRegistry(time.Minute)

	got, err := r.AddViewer(context.Background(), "ghost", "player-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoveViewer(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)
	_, err = r.AddViewer(ctx, sess.ID, "player-1")
	require.NoError(t, err)

	got, err := r.RemoveViewer(ctx, sess.ID, "player-1")
	require.NoError(t, err)
	assert.Empty(t, got.Viewers)

	// Absent viewer and absent session are both silent no-ops.
	got, err = r.RemoveViewer(ctx, sess.ID, "nobody")
	require.NoError(t, err)
	require.NotNil(t, got)
	got, err = r.RemoveViewer(ctx, "ghost", "player-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdatePageAndScroll(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	got, err := r.UpdatePage(ctx, sess.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, got.CurrentPage)

	got, err = r.UpdateScroll(ctx, sess.ID, 0.75)
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.ScrollPosition)
	assert.Equal(t, 42, got.CurrentPage, "scroll update leaves the page alone")
}

func TestUpdateSyncSettings_PartialMerge(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	off := false
	got, err := r.UpdateSyncSettings(ctx, sess.ID, models.SyncSettingsPatch{SyncPage: &off})
	require.NoError(t, err)

	assert.False(t, got.Settings.SyncPage)
	assert.True(t, got.Settings.SyncScroll, "untouched fields keep their value")
	assert.True(t, got.Settings.SyncHighlight)
}

func TestHighlights(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(time.Minute)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	got, err := r.AddHighlight(ctx, sess.ID, "h1")
	require.NoError(t, err)
	got, err = r.AddHighlight(ctx, sess.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, got.Highlights)

	got, err = r.RemoveHighlight(ctx, sess.ID, "h1")
	require.NoError(t, err)
	assert.Empty(t, got.Highlights)
}

func TestSlidingTTL(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(60 * time.Millisecond)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	// Activity keeps the session alive past its original window.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		_, err := r.AddViewer(ctx, sess.ID, "player-1")
		require.NoError(t, err)
	}
	_, err = r.Get(ctx, sess.ID)
	require.NoError(t, err)

	// Idle past the window, it ages out.
	time.Sleep(90 * time.Millisecond)
	_, err = r.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestGet_SlidesTTL(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(60 * time.Millisecond)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	// A session that is only being read must outlive its original window.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		_, err := r.Get(ctx, sess.ID)
		require.NoError(t, err, "read %d should keep the session alive", i)
	}
}

func TestRefresh_ExtendsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(60 * time.Millisecond)
	sess, err := r.Create(ctx, "doc-1", "", "", "dm-1", nil)
	require.NoError(t, err)

	before, err := r.Get(ctx, sess.ID)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, r.Refresh(ctx, sess.ID))
	time.Sleep(40 * time.Millisecond)

	after, err := r.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before.LastActivity, after.LastActivity)
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		assert.Len(t, code, roomCodeLength)
		for _, ch := range code {
			assert.Contains(t, roomCodeAlphabet, string(ch))
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 90, "codes should be effectively unique")
}
