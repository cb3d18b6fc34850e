// Package users declares the credential store contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
)

// Repository stores administrator accounts. Emails are expected to be
// normalised by the caller.
type Repository interface {
	// Create inserts user and fills ID and timestamps. A duplicate email
	// yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	// Update writes email, name and role of user.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
