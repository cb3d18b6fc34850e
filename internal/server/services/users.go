// Package services contains server-side business logic: account
// administration, login and the password reset lifecycle.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/dbx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/repomanager"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// UserInput describes a new account.
type UserInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// ProfileInput holds the fields a user may change about themselves.
type ProfileInput struct {
	Email string
	Name  string
}

// UserUpdate is an administrative change. Nil fields are left unchanged.
type UserUpdate struct {
	Email    *string
	Name     *string
	Role     *models.Role
	Password *string
}

// UserService implements login, self-registration, profile management and
// user administration.
type UserService struct {
	db                 *sql.DB
	repomanager        repomanager.RepositoryManager
	hasher             *auth.PasswordHasher
	issuer             *auth.TokenIssuer
	registrationSecret []byte
}

// NewUserService wires a UserService. An empty registrationSecret disables
// self-registration.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher *auth.PasswordHasher,
	issuer *auth.TokenIssuer, registrationSecret string) *UserService {
	return &UserService{
		db:                 db,
		repomanager:        m,
		hasher:             hasher,
		issuer:             issuer,
		registrationSecret: []byte(registrationSecret),
	}
}

// Login checks credentials and issues a session token. Unknown email and
// wrong password both yield common.ErrorUnauthorized after one bcrypt
// comparison.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.hasher.DummyHash())
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}

	token, err := s.issuer.Issue(auth.Claims{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{Token: token, ExpiresAt: time.Now().Add(s.issuer.TTL()), User: user}, nil
}

// Register creates an ADMIN account when secret matches the configured
// registration secret.
func (s *UserService) Register(ctx context.Context, secret string, in UserInput) (*models.User, error) {
	if len(s.registrationSecret) == 0 ||
		subtle.ConstantTimeCompare([]byte(secret), s.registrationSecret) != 1 {
		return nil, common.ErrForbidden
	}
	in.Role = models.RoleAdmin
	return s.create(ctx, in)
}

func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.Get(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	v := &common.ValidationError{}
	checkEmail(v, email)
	checkName(v, name)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Email = email
	user.Name = name

	return repo.Update(ctx, user)
}

// ChangePassword replaces the caller's password after checking the current
// one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	v := &common.ValidationError{}
	if current == "" {
		v.Add("currentPassword", "is required")
	}
	checkPassword(v, "newPassword", next)
	if err := v.OrNil(); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return common.ErrorUnauthorized
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return repo.UpdatePassword(ctx, userID, hash)
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// Create adds an account on behalf of an administrator. Role defaults to
// ADMIN.
func (s *UserService) Create(ctx context.Context, in UserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleAdmin
	}
	return s.create(ctx, in)
}

// Update applies an administrative change. A new password is written in the
// same transaction as the other fields.
func (s *UserService) Update(ctx context.Context, id string, in UserUpdate) (*models.User, error) {
	v := &common.ValidationError{}
	if in.Email != nil {
		*in.Email = normalizeEmail(*in.Email)
		checkEmail(v, *in.Email)
	}
	if in.Name != nil {
		*in.Name = strings.TrimSpace(*in.Name)
		checkName(v, *in.Name)
	}
	if in.Role != nil {
		checkRole(v, *in.Role)
	}
	if in.Password != nil {
		checkPassword(v, "password", *in.Password)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	var hash string
	if in.Password != nil {
		var err error
		if hash, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Email != nil {
			user.Email = *in.Email
		}
		if in.Name != nil {
			user.Name = *in.Name
		}
		if in.Role != nil {
			user.Role = *in.Role
		}

		if updated, err = repo.Update(ctx, user); err != nil {
			return err
		}
		if hash != "" {
			return repo.UpdatePassword(ctx, id, hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes targetID. An account can never delete itself.
func (s *UserService) Delete(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return common.ErrSelfDeletion
	}
	return s.repomanager.Users(s.db).Delete(ctx, targetID)
}

func (s *UserService) create(ctx context.Context, in UserInput) (*models.User, error) {
	user := &models.User{
		Email: normalizeEmail(in.Email),
		Name:  strings.TrimSpace(in.Name),
		Role:  in.Role,
	}

	v := &common.ValidationError{}
	checkEmail(v, user.Email)
	checkName(v, user.Name)
	checkPassword(v, "password", in.Password)
	checkRole(v, user.Role)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash

	return s.repomanager.Users(s.db).Create(ctx, user)
}
