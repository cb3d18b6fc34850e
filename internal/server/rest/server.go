// Package rest is the HTTP transport of the auth server: login, password
// reset, profile and user administration endpoints on a chi router.
package rest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/mail"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/dmitrijs2005/dealerdesk/internal/server/ratelimit"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// UserService is the account logic the handlers depend on.
type UserService interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Register(ctx context.Context, secret string, in services.UserInput) (*models.User, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	List(ctx context.Context) ([]*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, in services.UserInput) (*models.User, error)
	Update(ctx context.Context, id string, in services.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, actorID, targetID string) error
}

// ResetService issues and redeems password reset tokens.
type ResetService interface {
	RequestReset(ctx context.Context, email string) (*services.ResetGrant, error)
	RedeemReset(ctx context.Context, token, newPassword string) error
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Deps are the collaborators of the HTTP server. Limiters, ClientIPs and
// Metrics may be nil. A nil ClientIPs keys rate limits on the socket peer.
type Deps struct {
	Users         UserService
	Resets        ResetService
	Tokens        TokenVerifier
	Mailer        mail.Mailer
	LoginLimiter  *ratelimit.Limiter
	ForgotLimiter *ratelimit.Limiter
	ClientIPs     *ratelimit.IPResolver
	Metrics       *metrics.Metrics
	Logger        logging.Logger
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger

	// background tracks reset issuance running after its response was sent.
	background sync.WaitGroup
}

func NewServer(address string, d Deps) *Server {
	logger := d.Logger.With("module", "http_server")
	d.Logger = logger
	return &Server{address: address, deps: d, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(s.deps.Metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	onLimited := func(*http.Request) { s.deps.Metrics.AuthEvent(metrics.EventRateLimited, metrics.OutcomeFailure) }
	authn := Authenticate(s.deps.Tokens)
	superAdmin := RequireRole(models.RoleSuperAdmin)

	r.Route("/auth", func(r chi.Router) {
		r.With(ratelimit.Middleware(s.deps.LoginLimiter, s.deps.ClientIPs, s.logger, onLimited)).Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.With(ratelimit.Middleware(s.deps.ForgotLimiter, s.deps.ClientIPs, s.logger, onLimited)).Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authn)

		r.Get("/me", s.handleGetMe)
		r.Put("/me", s.handleUpdateMe)
		r.Put("/me/password", s.handleChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(superAdmin)
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{id}", s.handleGetUser)
			r.Put("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	err := srv.ListenAndServe()
	s.background.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
