// Package server wires the auth server together: storage, services, the
// HTTP and gRPC transports and the background janitor. It owns their
// lifecycle and shuts them down on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/config"
	"github.com/dmitrijs2005/dealerdesk/internal/server/jobs"
	"github.com/dmitrijs2005/dealerdesk/internal/server/mail"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"github.com/dmitrijs2005/dealerdesk/internal/server/ratelimit"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dealerdesk/internal/server/rest"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/dealerdesk/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	http    *rest.Server
	grpc    *gs.GRPCServer
	janitor *jobs.Janitor
}

// NewApp connects to the database, applies migrations and builds every
// component from c. The caller must have validated c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	m := metrics.New()
	hasher := auth.NewPasswordHasher(c.BcryptCost)
	issuer := auth.NewTokenIssuer([]byte(c.JWTSecret), c.TokenValidityDuration)

	us := services.NewUserService(db, rm, hasher, issuer, c.RegistrationSecret)
	rs := services.NewPasswordResetService(db, rm, hasher, c.ResetTokenValidityDuration)

	mailer, err := mail.New(mail.Config{
		Host:        c.SMTPHost,
		User:        c.SMTPUser,
		Password:    c.SMTPPassword,
		SkipVerify:  c.SMTPSkipVerify,
		From:        c.MailFrom,
		FrontendURL: c.FrontendURL,
	}, logger.With("module", "mail"))
	if err != nil {
		app.Close()
		return nil, err
	}
	if !mailer.Enabled() {
		logger.Warn(ctx, "SMTP is not configured, reset emails will not be sent")
	}

	var loginLimiter, forgotLimiter *ratelimit.Limiter
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn(ctx, "redis unreachable, rate limits fail open until it recovers", "error", err)
		}
		cancel()

		loginLimiter = ratelimit.New(app.redis, "login", c.LoginRateLimit, c.RateLimitWindow)
		forgotLimiter = ratelimit.New(app.redis, "forgot", c.ForgotPasswordRateLimit, c.RateLimitWindow)
	} else {
		logger.Warn(ctx, "redis address not set, rate limiting disabled")
	}

	clientIPs, err := ratelimit.NewIPResolver(c.TrustedProxies)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.http = rest.NewServer(c.HTTPAddr, rest.Deps{
		Users:         us,
		Resets:        rs,
		Tokens:        issuer,
		Mailer:        mailer,
		LoginLimiter:  loginLimiter,
		ForgotLimiter: forgotLimiter,
		ClientIPs:     clientIPs,
		Metrics:       m,
		Logger:        logger,
	})

	app.grpc = gs.NewGRPCServer(c.GRPCAddr, logger, issuer, c.ServiceAuthToken, m)

	app.janitor, err = jobs.NewJanitor(c.JanitorSchedule, rs, m, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// start runs fn in its own goroutine; an error from fn stops the whole app.
func (app *App) start(ctx context.Context, wg *sync.WaitGroup, cancelFunc context.CancelFunc, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			app.logger.Error(ctx, name+" failed", "error", err)
			cancelFunc()
		}
	}()
}

// Run blocks until a signal arrives, ctx is cancelled or a component
// fails, then waits for everything to stop and releases connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	app.start(ctx, &wg, cancelFunc, "http server", app.http.Run)
	app.start(ctx, &wg, cancelFunc, "grpc server", app.grpc.Run)
	app.start(ctx, &wg, cancelFunc, "janitor", app.janitor.Run)

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "closing resources", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database and redis connections.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}
