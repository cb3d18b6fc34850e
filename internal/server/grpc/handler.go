package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type identityHandler struct {
	tokens  TokenVerifier
	metrics *metrics.Metrics
	logger  logging.Logger
}

func (h *identityHandler) VerifyToken(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	claims, err := h.tokens.Verify(in.GetValue())
	if err != nil {
		h.metrics.AuthEvent(metrics.EventTokenVerify, metrics.OutcomeFailure)
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	h.metrics.AuthEvent(metrics.EventTokenVerify, metrics.OutcomeSuccess)

	fields := map[string]any{
		"userId": claims.UserID,
		"email":  claims.Email,
		"role":   string(claims.Role),
	}
	if claims.ExpiresAt != nil {
		fields["expiresAt"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		h.logger.Error(ctx, "building verify response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
