package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/dbx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	t := &models.PasswordResetToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	if err := r.db.QueryRowContext(ctx, query, userID, tokenHash, expiresAt).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	t := &models.PasswordResetToken{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return t, nil
}

func (r *PostgresRepository) DeleteUnusedForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE user_id = $1 AND used_at IS NULL
	`
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, tokenHash string, at time.Time) error {
	query := `
		UPDATE password_reset_tokens SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL
	`
	n, err := r.exec(ctx, query, tokenHash, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrResetTokenUsed
	}
	return nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1 OR used_at IS NOT NULL
	`
	return r.exec(ctx, query, before)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
