package rest

import (
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
)

type userSummary struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

type userResponse struct {
	userSummary
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toSummary(u *models.User) userSummary {
	return userSummary{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

func toResponse(u *models.User) userResponse {
	return userResponse{userSummary: toSummary(u), CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      userSummary `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type profileRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type createUserRequest struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type updateUserRequest struct {
	Email    *string      `json:"email"`
	Name     *string      `json:"name"`
	Role     *models.Role `json:"role"`
	Password *string      `json:"password"`
}
