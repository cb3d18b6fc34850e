// Package config handles configuration for the server component:
// defaults, then an optional JSON file, then environment variables, then
// command-line flags, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Config holds runtime settings for the dealerdesk auth server.
//
// DatabaseDSN, JWTSecret and RegistrationSecret have no defaults: they must
// be provisioned from the environment, a config file or flags.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	DatabaseDSN string
	LogLevel    string

	JWTSecret             string
	TokenValidityDuration time.Duration
	BcryptCost            int

	// RegistrationSecret gates POST /auth/register. Empty disables it.
	RegistrationSecret string
	// ServiceAuthToken authenticates internal gRPC callers. Empty disables
	// the identity service.
	ServiceAuthToken string

	ResetTokenValidityDuration time.Duration
	FrontendURL                string
	JanitorSchedule            string

	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	LoginRateLimit          int
	ForgotPasswordRateLimit int
	RateLimitWindow         time.Duration
	// TrustedProxies lists proxy addresses or CIDRs whose forwarded
	// client address headers are believed.
	TrustedProxies []string

	SMTPHost       string
	SMTPUser       string
	SMTPPassword   string
	SMTPSkipVerify bool
	MailFrom       string
}

// LoadDefaults populates Config with development defaults. Secrets are left
// empty on purpose.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":3001"
	c.GRPCAddr = ":50051"
	c.LogLevel = "info"
	c.TokenValidityDuration = 7 * 24 * time.Hour
	c.BcryptCost = 12
	c.ResetTokenValidityDuration = time.Hour
	c.FrontendURL = "http://localhost:3000"
	c.JanitorSchedule = "@hourly"
	c.LoginRateLimit = 10
	c.ForgotPasswordRateLimit = 5
	c.RateLimitWindow = 15 * time.Minute
	c.MailFrom = "Dealerdesk <no-reply@localhost>"
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is not set (JWT_SECRET)"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is not set (DATABASE_URL)"))
	}
	if c.TokenValidityDuration <= 0 {
		errs = append(errs, errors.New("token validity must be positive"))
	}
	if c.ResetTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("reset token validity must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("bcrypt cost must be within [4, 31]"))
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				errs = append(errs, fmt.Errorf("trusted proxy %q is neither an IP nor a CIDR", p))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, the optional JSON file,
// the environment and finally the command line.
func LoadConfig() *Config {
	args := os.Args[1:]

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseEnv(cfg, os.LookupEnv)
	parseFlags(cfg, args)
	return cfg
}
