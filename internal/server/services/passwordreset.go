package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/dbx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/repomanager"
)

// resetTokenBytes is the entropy of a reset token before hex encoding.
const resetTokenBytes = 32

// ResetGrant is a freshly issued reset token ready for delivery. Token is
// the only copy of the raw secret.
type ResetGrant struct {
	Token     string
	User      *models.User
	ExpiresAt time.Time
}

// PasswordResetService issues and redeems single-use password reset tokens.
type PasswordResetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	ttl         time.Duration
	now         func() time.Time
}

func NewPasswordResetService(db *sql.DB, m repomanager.RepositoryManager, hasher *auth.PasswordHasher, ttl time.Duration) *PasswordResetService {
	return &PasswordResetService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		ttl:         ttl,
		now:         time.Now,
	}
}

// RequestReset issues a new token for the account behind email, replacing
// any unused one. It returns nil, nil when no such account exists.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (*ResetGrant, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.now().Add(s.ttl)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.ResetTokens(tx)
		if _, err := repo.DeleteUnusedForUser(ctx, user.ID); err != nil {
			return err
		}
		_, err := repo.Create(ctx, user.ID, common.HashToken(token), expiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ResetGrant{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// RedeemReset consumes token and sets the owner's password. Marking the
// token used and writing the hash commit together.
func (s *PasswordResetService) RedeemReset(ctx context.Context, token, newPassword string) error {
	v := &common.ValidationError{}
	if token == "" {
		v.Add("token", "is required")
	}
	checkPassword(v, "password", newPassword)
	if err := v.OrNil(); err != nil {
		return err
	}

	digest := common.HashToken(token)
	rec, err := s.repomanager.ResetTokens(s.db).FindByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResetTokenNotFound
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	now := s.now()
	if rec.Used() {
		return common.ErrResetTokenUsed
	}
	if rec.Expired(now) {
		return common.ErrResetTokenExpired
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.ResetTokens(tx).MarkUsed(ctx, digest, now); err != nil {
			return err
		}
		return s.repomanager.Users(tx).UpdatePassword(ctx, rec.UserID, hash)
	})
}

// PurgeStale deletes expired and used tokens. It returns the number removed.
func (s *PasswordResetService) PurgeStale(ctx context.Context) (int64, error) {
	return s.repomanager.ResetTokens(s.db).DeleteStale(ctx, s.now())
}
