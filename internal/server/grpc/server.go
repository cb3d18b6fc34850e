// Package grpc serves token introspection to the internal CRUD services
// together with the standard gRPC health service.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address      string
	logger       logging.Logger
	tokens       TokenVerifier
	metrics      *metrics.Metrics
	serviceToken string
}

// NewGRPCServer creates the server. With an empty serviceToken only the
// health service is exposed.
func NewGRPCServer(address string, l logging.Logger, tokens TokenVerifier, serviceToken string, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address:      address,
		logger:       l.With("module", "grpc_server"),
		tokens:       tokens,
		metrics:      m,
		serviceToken: serviceToken,
	}
}

func (s *GRPCServer) build() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(serviceTokenInterceptor(s.serviceToken)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	if s.serviceToken != "" {
		RegisterIdentityServer(srv, &identityHandler{tokens: s.tokens, metrics: s.metrics, logger: s.logger})
		hs.SetServingStatus(IdentityServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	return srv, hs
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv, hs := s.build()

	if s.serviceToken == "" {
		s.logger.Warn(ctx, "service token not configured, identity service disabled")
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}
