package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	msgAuthRequired     = "authentication required"
	msgInvalidToken     = "invalid or expired token"
	msgInsufficientRole = "insufficient permissions"
	msgInvalidBody      = "invalid request body"
	msgInvalidCreds     = "invalid email or password"
	msgInvalidReset     = "invalid or expired reset token"
	msgInternal         = "internal server error"
	msgForgotPassword   = "If an account with that email exists, a password reset link has been sent."
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service errors onto statuses. Anything unknown is
// logged and reported as a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusUnauthorized, msgInvalidCreds)
	case errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
	case errors.Is(err, common.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, common.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "a user with that email already exists")
	case errors.Is(err, common.ErrSelfDeletion):
		writeError(w, http.StatusBadRequest, common.ErrSelfDeletion.Error())
	case errors.Is(err, common.ErrResetTokenNotFound):
		writeError(w, http.StatusBadRequest, msgInvalidReset)
	case errors.Is(err, common.ErrResetTokenUsed):
		writeError(w, http.StatusBadRequest, "reset token has already been used")
	case errors.Is(err, common.ErrResetTokenExpired):
		writeError(w, http.StatusBadRequest, "reset token has expired")
	default:
		s.logger.Error(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
