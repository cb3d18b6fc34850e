package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newResetService(t *testing.T, now time.Time) (*PasswordResetService, *fakeRepoManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := newFakeRepoManager()
	s := NewPasswordResetService(db, rm, auth.NewPasswordHasher(bcrypt.MinCost), time.Hour)
	s.now = func() time.Time { return now }
	return s, rm, mock
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	s, rm, _ := newResetService(t, time.Now())

	grant, err := s.RequestReset(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Nil(t, grant)
	assert.Empty(t, rm.r.tokens)
}

func TestRequestReset_IssuesHashedToken(t *testing.T) {
	now := time.Now()
	s, rm, mock := newResetService(t, now)
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	mock.ExpectBegin()
	mock.ExpectCommit()

	grant, err := s.RequestReset(context.Background(), "Jane@Example.com")
	require.NoError(t, err)
	require.NotNil(t, grant)

	assert.Len(t, grant.Token, 64)
	assert.Equal(t, "u1", grant.User.ID)
	assert.Equal(t, now.Add(time.Hour), grant.ExpiresAt)

	require.Len(t, rm.r.tokens, 1)
	stored := rm.r.tokens[0]
	assert.Equal(t, common.HashToken(grant.Token), stored.TokenHash)
	assert.NotEqual(t, grant.Token, stored.TokenHash)
	assert.Equal(t, now.Add(time.Hour), stored.ExpiresAt)
}

func TestRequestReset_AtMostOneLiveToken(t *testing.T) {
	now := time.Now()
	s, rm, mock := newResetService(t, now)
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	first, err := s.RequestReset(context.Background(), "jane@example.com")
	require.NoError(t, err)
	second, err := s.RequestReset(context.Background(), "jane@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, 1, rm.r.live("u1", now))

	mock.ExpectBegin()
	mock.ExpectCommit()
	assert.NoError(t, s.RedeemReset(context.Background(), second.Token, "NewSecret123"))
	assert.ErrorIs(t, s.RedeemReset(context.Background(), first.Token, "NewSecret123"), common.ErrResetTokenNotFound)
}

func TestRequestReset_StoreFailureRollsBack(t *testing.T) {
	s, rm, mock := newResetService(t, time.Now())
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	rm.r.createErr = errors.New("db down")
	mock.ExpectBegin()
	mock.ExpectRollback()

	grant, err := s.RequestReset(context.Background(), "jane@example.com")
	assert.Error(t, err)
	assert.Nil(t, grant)
}

func issueGrant(t *testing.T, s *PasswordResetService, mock sqlmock.Sqlmock, email string) *ResetGrant {
	t.Helper()
	mock.ExpectBegin()
	mock.ExpectCommit()
	grant, err := s.RequestReset(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, grant)
	return grant
}

func TestRedeemReset_SuccessThenAlreadyUsed(t *testing.T) {
	now := time.Now()
	s, rm, mock := newResetService(t, now)
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	grant := issueGrant(t, s, mock, "jane@example.com")

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, s.RedeemReset(context.Background(), grant.Token, "NewSecret123"))

	stored := rm.u.get("u1")
	assert.True(t, s.hasher.Verify("NewSecret123", stored.PasswordHash))
	require.NotNil(t, rm.r.tokens[0].UsedAt)
	assert.Equal(t, now, *rm.r.tokens[0].UsedAt)

	// still inside the validity window
	s.now = func() time.Time { return now.Add(10 * time.Minute) }
	assert.ErrorIs(t, s.RedeemReset(context.Background(), grant.Token, "Other12345"), common.ErrResetTokenUsed)
	assert.True(t, s.hasher.Verify("NewSecret123", rm.u.get("u1").PasswordHash))
}

func TestRedeemReset_Expired(t *testing.T) {
	now := time.Now()
	s, rm, mock := newResetService(t, now)
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	grant := issueGrant(t, s, mock, "jane@example.com")

	s.now = func() time.Time { return now.Add(time.Hour + time.Second) }
	assert.ErrorIs(t, s.RedeemReset(context.Background(), grant.Token, "NewSecret123"), common.ErrResetTokenExpired)
	assert.Nil(t, rm.r.tokens[0].UsedAt)
	assert.True(t, s.hasher.Verify("Secret123", rm.u.get("u1").PasswordHash))
}

func TestRedeemReset_NotFoundAndValidation(t *testing.T) {
	s, _, _ := newResetService(t, time.Now())

	assert.ErrorIs(t, s.RedeemReset(context.Background(), "deadbeef", "NewSecret123"), common.ErrResetTokenNotFound)

	err := s.RedeemReset(context.Background(), "", "short")
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "token")
	assert.Contains(t, fields, "password")
}

func TestRedeemReset_LosingConcurrentRedemption(t *testing.T) {
	now := time.Now()
	s, rm, mock := newResetService(t, now)
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	grant := issueGrant(t, s, mock, "jane@example.com")

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, s.RedeemReset(context.Background(), grant.Token, "Winner12345"))

	// the loser read the row before the winner committed
	rm.r.staleReads = true
	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, s.RedeemReset(context.Background(), grant.Token, "Loser12345"), common.ErrResetTokenUsed)
	assert.True(t, s.hasher.Verify("Winner12345", rm.u.get("u1").PasswordHash))
}

func TestRedeemReset_PasswordWriteFailureRollsBack(t *testing.T) {
	s, rm, mock := newResetService(t, time.Now())
	seedUser(t, rm, "u1", "jane@example.com", "Secret123", models.RoleAdmin)
	grant := issueGrant(t, s, mock, "jane@example.com")

	rm.u.pwErr = errors.New("db down")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RedeemReset(context.Background(), grant.Token, "NewSecret123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrResetTokenUsed)
}

func TestPurgeStale(t *testing.T) {
	now := time.Now()
	s, rm, _ := newResetService(t, now)
	used := now.Add(-time.Minute)
	rm.r.tokens = []*models.PasswordResetToken{
		{TokenHash: "expired", UserID: "u1", ExpiresAt: now.Add(-time.Second)},
		{TokenHash: "used", UserID: "u2", ExpiresAt: now.Add(time.Hour), UsedAt: &used},
		{TokenHash: "live", UserID: "u3", ExpiresAt: now.Add(time.Hour)},
	}

	n, err := s.PurgeStale(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.Len(t, rm.r.tokens, 1)
	assert.Equal(t, "live", rm.r.tokens[0].TokenHash)
}
