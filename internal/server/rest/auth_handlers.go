package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
	"github.com/go-chi/chi/v5/middleware"
)

const resetDispatchTimeout = 30 * time.Second

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Email == "" || req.Password == "" {
		v := &common.ValidationError{}
		if req.Email == "" {
			v.Add("email", "is required")
		}
		if req.Password == "" {
			v.Add("password", "is required")
		}
		s.writeServiceError(w, r, v)
		return
	}

	res, err := s.deps.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.deps.Metrics.AuthEvent(metrics.EventLogin, metrics.OutcomeFailure)
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.deps.Metrics.AuthEvent(metrics.EventLogin, metrics.OutcomeSuccess)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      toSummary(res.User),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := s.deps.Users.Register(r.Context(), r.Header.Get(common.RegistrationSecretHeaderName), services.UserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, common.ErrForbidden) {
			s.deps.Metrics.AuthEvent(metrics.EventRegister, metrics.OutcomeFailure)
			writeError(w, http.StatusForbidden, "invalid registration secret")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.deps.Metrics.AuthEvent(metrics.EventRegister, metrics.OutcomeSuccess)

	writeJSON(w, http.StatusCreated, toResponse(user))
}

// handleForgotPassword answers at once with the same message whether or not
// the account exists. Token issuance and delivery run in the background and
// their failures are only logged.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Email == "" {
		v := &common.ValidationError{}
		v.Add("email", "is required")
		s.writeServiceError(w, r, v)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), resetDispatchTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		s.issueReset(ctx, req.Email)
	}()

	writeJSON(w, http.StatusOK, messageResponse{Message: msgForgotPassword})
}

func (s *Server) issueReset(ctx context.Context, email string) {
	reqID := middleware.GetReqID(ctx)

	grant, err := s.deps.Resets.RequestReset(ctx, email)
	if err != nil {
		s.logger.Error(ctx, "password reset not issued", "request_id", reqID, "error", err)
		return
	}

	if grant == nil {
		s.deps.Metrics.AuthEvent(metrics.EventResetRequest, metrics.OutcomeUnknownUser)
		return
	}
	s.deps.Metrics.AuthEvent(metrics.EventResetRequest, metrics.OutcomeSuccess)

	if s.deps.Mailer == nil {
		return
	}
	if err := s.deps.Mailer.SendPasswordReset(ctx, grant.User.Email, grant.User.Name, grant.Token, grant.ExpiresAt); err != nil {
		s.logger.Error(ctx, "password reset email not sent",
			"request_id", reqID,
			"user_id", grant.User.ID,
			"error", err,
		)
	}
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := s.deps.Resets.RedeemReset(r.Context(), req.Token, req.Password); err != nil {
		var ve *common.ValidationError
		if !errors.As(err, &ve) {
			s.deps.Metrics.AuthEvent(metrics.EventResetRedeem, metrics.OutcomeFailure)
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.deps.Metrics.AuthEvent(metrics.EventResetRedeem, metrics.OutcomeSuccess)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset successfully."})
}
