package session

import (
	"context"

	"github.com/grimoire-app/app-library/internal/models"
)

// Store holds ephemeral session state under a sliding TTL. Every Save and
// Touch resets the expiry clock to a fixed window from now; a session nobody
// touches simply ages out.
type Store interface {
	// Save upserts the session and refreshes its TTL.
	Save(ctx context.Context, s *models.Session) error

	// Get fetches a session by id, returning models.ErrSessionNotFound when
	// absent or expired.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Touch refreshes the TTL without mutating state. A missing session is a
	// no-op.
	Touch(ctx context.Context, id string) error

	// Delete removes the session.
	Delete(ctx context.Context, id string) error
}
