package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
)

// roomCodeAlphabet avoids ambiguous characters so codes survive being read
// aloud at a table.
const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
)

// Registry manages the lifecycle of collaborative viewing sessions. Mutations
// are read-modify-write with last-write-wins; every operation slides the
// session's TTL. Mutators on a missing session are silent no-ops, only Get
// reports absence.
type Registry struct {
	store  Store
	logger *logging.SafeLogger
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store, logger *logging.SafeLogger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Create starts a new session on a document with the presenter as its only
// initial participant. Settings default to all-sync when nil; an empty room
// code gets a generated one.
func (r *Registry) Create(ctx context.Context, documentID, campaignID, roomCode, presenterID string, settings *models.SyncSettings) (*models.Session, error) {
	if documentID == "" || presenterID == "" {
		return nil, fmt.Errorf("document id and presenter id are required")
	}
	if roomCode == "" {
		roomCode = GenerateRoomCode()
	}

	applied := models.DefaultSyncSettings()
	if settings != nil {
		applied = *settings
	}

	now := time.Now()
	sess := &models.Session{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		CampaignID:   campaignID,
		RoomCode:     roomCode,
		PresenterID:  presenterID,
		Viewers:      []string{},
		CurrentPage:  1,
		Highlights:   []string{},
		Settings:     applied,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("document_id", documentID),
		zap.String("room_code", roomCode))
	return sess, nil
}

// Get fetches a session by id. Reads count as activity, so a successful Get
// slides the TTL like every other operation.
func (r *Registry) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.Touch(ctx, id); err != nil {
		r.logger.Warn("failed to refresh session ttl on read",
			zap.String("session_id", id),
			zap.Error(err))
	}
	return sess, nil
}

// AddViewer adds a user to the viewer set. Idempotent: a user already present
// is not duplicated, but the TTL still refreshes. Returns nil when the
// session is absent.
func (r *Registry) AddViewer(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		if !sess.HasViewer(userID) {
			sess.Viewers = append(sess.Viewers, userID)
		}
	})
}

// RemoveViewer removes a user from the viewer set; absent users and absent
// sessions are no-ops.
func (r *Registry) RemoveViewer(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		for i, v := range sess.Viewers {
			if v == userID {
				sess.Viewers = append(sess.Viewers[:i], sess.Viewers[i+1:]...)
				break
			}
		}
	})
}

// UpdatePage records the current page.
func (r *Registry) UpdatePage(ctx context.Context, sessionID string, page int) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		sess.CurrentPage = page
	})
}

// UpdateScroll records the current scroll position.
func (r *Registry) UpdateScroll(ctx context.Context, sessionID string, position float64) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		sess.ScrollPosition = position
	})
}

// UpdateSyncSettings merges a partial settings patch into the session.
func (r *Registry) UpdateSyncSettings(ctx context.Context, sessionID string, patch models.SyncSettingsPatch) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		if patch.SyncScroll != nil {
			sess.Settings.SyncScroll = *patch.SyncScroll
		}
		if patch.SyncPage != nil {
			sess.Settings.SyncPage = *patch.SyncPage
		}
		if patch.SyncHighlight != nil {
			sess.Settings.SyncHighlight = *patch.SyncHighlight
		}
	})
}

// AddHighlight records a shared highlight reference.
func (r *Registry) AddHighlight(ctx context.Context, sessionID, highlight string) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		for _, h := range sess.Highlights {
			if h == highlight {
				return
			}
		}
		sess.Highlights = append(sess.Highlights, highlight)
	})
}

// RemoveHighlight drops a shared highlight reference.
func (r *Registry) RemoveHighlight(ctx context.Context, sessionID, highlight string) (*models.Session, error) {
	return r.mutate(ctx, sessionID, func(sess *models.Session) {
		for i, h := range sess.Highlights {
			if h == highlight {
				sess.Highlights = append(sess.Highlights[:i], sess.Highlights[i+1:]...)
				return
			}
		}
	})
}

// Refresh extends the TTL without mutation.
func (r *Registry) Refresh(ctx context.Context, sessionID string) error {
	return r.store.Touch(ctx, sessionID)
}

// End deletes the session outright.
func (r *Registry) End(ctx context.Context, sessionID string) error {
	if err := r.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	r.logger.Info("session ended", zap.String("session_id", sessionID))
	return nil
}

// mutate applies a read-modify-write on the session, stamping activity and
// refreshing the TTL through Save. A missing session returns nil, nil.
func (r *Registry) mutate(ctx context.Context, sessionID string, apply func(*models.Session)) (*models.Session, error) {
	sess, err := r.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	apply(sess)
	sess.LastActivity = time.Now()
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GenerateRoomCode returns a short join code for sharing out of band.
func GenerateRoomCode() string {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read failing means the platform RNG is broken; fall back to
		// a uuid-derived code rather than panicking mid-session-create.
		id := uuid.NewString()
		return id[:roomCodeLength]
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf)
}
