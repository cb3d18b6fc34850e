// Package resettokens declares the server-side repository contract for
// password reset grants and its PostgreSQL implementation.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
)

// Repository stores reset grants keyed by the digest of the raw token.
type Repository interface {
	// Create stores a new grant for userID expiring at expiresAt.
	Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error)

	// FindByHash returns common.ErrorNotFound when no grant has that digest.
	FindByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)

	// DeleteUnusedForUser drops every unredeemed grant of userID.
	DeleteUnusedForUser(ctx context.Context, userID string) (int64, error)

	// MarkUsed consumes the grant. It returns common.ErrResetTokenUsed if
	// the grant was already consumed or no longer exists.
	MarkUsed(ctx context.Context, tokenHash string, at time.Time) error

	// DeleteStale removes grants expired before the given time and grants
	// that were already used.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
