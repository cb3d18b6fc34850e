package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// serviceTokenInterceptor admits calls carrying the shared service token in
// the x-service-token metadata key. Health checks are always admitted.
func serviceTokenInterceptor(token string) grpc.UnaryServerInterceptor {
	want := []byte(token)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		var got string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(common.ServiceTokenMetadataKey); len(values) > 0 {
				got = values[0]
			}
		}
		if got == "" {
			return nil, status.Error(codes.Unauthenticated, "missing service token")
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid service token")
		}

		return handler(ctx, req)
	}
}
