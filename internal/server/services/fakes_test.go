package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/dbx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	resettokensrepo "github.com/dmitrijs2005/dealerdesk/internal/server/repositories/resettokens"
	usersrepo "github.com/dmitrijs2005/dealerdesk/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	// forced failures
	getErr    error
	updateErr error
	pwErr     error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) put(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.byID[u.ID] = &cp
	return &cp
}

func (f *fakeUsersRepo) get(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrAlreadyExists
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("u-%d", f.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.User, 0, len(f.byID))
	for _, u := range f.byID {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUsersRepo) Update(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	existing, ok := f.byID[u.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for id, other := range f.byID {
		if id != u.ID && other.Email == u.Email {
			return nil, common.ErrAlreadyExists
		}
	}
	existing.Email, existing.Name, existing.Role = u.Email, u.Name, u.Role
	existing.UpdatedAt = time.Now()
	cp := *existing
	return &cp, nil
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id string, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pwErr != nil {
		return f.pwErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeResetRepo struct {
	mu     sync.Mutex
	tokens []*models.PasswordResetToken

	createErr error
	markErr   error
	// staleReads makes FindByHash report every token as unused, like a
	// lookup that raced with a concurrent redemption.
	staleReads bool
}

func (f *fakeResetRepo) Create(ctx context.Context, userID, hash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	t := &models.PasswordResetToken{
		ID:        fmt.Sprintf("t-%d", len(f.tokens)+1),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.tokens = append(f.tokens, t)
	return t, nil
}

func (f *fakeResetRepo) FindByHash(ctx context.Context, hash string) (*models.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.TokenHash == hash {
			cp := *t
			if f.staleReads {
				cp.UsedAt = nil
			}
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeResetRepo) DeleteUnusedForUser(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tokens[:0]
	var n int64
	for _, t := range f.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			n++
			continue
		}
		kept = append(kept, t)
	}
	f.tokens = kept
	return n, nil
}

func (f *fakeResetRepo) MarkUsed(ctx context.Context, hash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for _, t := range f.tokens {
		if t.TokenHash == hash && t.UsedAt == nil {
			used := at
			t.UsedAt = &used
			return nil
		}
	}
	return common.ErrResetTokenUsed
}

func (f *fakeResetRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tokens[:0]
	var n int64
	for _, t := range f.tokens {
		if t.UsedAt != nil || t.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	f.tokens = kept
	return n, nil
}

// live counts unused, unexpired tokens of userID at now.
func (f *fakeResetRepo) live(userID string, now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && !t.Used() && !t.Expired(now) {
			n++
		}
	}
	return n
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeResetRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), r: &fakeResetRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository             { return m.u }
func (m *fakeRepoManager) ResetTokens(db dbx.DBTX) resettokensrepo.Repository { return m.r }
