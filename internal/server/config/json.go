package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/flagx"
	"github.com/dmitrijs2005/dealerdesk/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Durations accept "15m"-style strings or integer nanoseconds.
// Zero values leave the current setting untouched.
type JsonConfig struct {
	HTTPAddr                   string         `json:"http_addr"`
	GRPCAddr                   string         `json:"grpc_addr"`
	DatabaseDSN                string         `json:"database_dsn"`
	LogLevel                   string         `json:"log_level"`
	JWTSecret                  string         `json:"jwt_secret"`
	TokenValidityDuration      timex.Duration `json:"token_validity_duration"`
	BcryptCost                 int            `json:"bcrypt_cost"`
	RegistrationSecret         string         `json:"registration_secret"`
	ServiceAuthToken           string         `json:"service_auth_token"`
	ResetTokenValidityDuration timex.Duration `json:"reset_token_validity_duration"`
	FrontendURL                string         `json:"frontend_url"`
	JanitorSchedule            string         `json:"janitor_schedule"`
	RedisAddr                  string         `json:"redis_addr"`
	RedisPassword              string         `json:"redis_password"`
	RedisDB                    int            `json:"redis_db"`
	LoginRateLimit             int            `json:"login_rate_limit"`
	ForgotPasswordRateLimit    int            `json:"forgot_password_rate_limit"`
	RateLimitWindow            timex.Duration `json:"rate_limit_window"`
	TrustedProxies             []string       `json:"trusted_proxies"`
	SMTPHost                   string         `json:"smtp_host"`
	SMTPUser                   string         `json:"smtp_user"`
	SMTPPassword               string         `json:"smtp_password"`
	SMTPSkipVerify             bool           `json:"smtp_skip_verify"`
	MailFrom                   string         `json:"mail_from"`
}

// parseJson overlays values from the file named by -c/-config in args.
// Without that flag nothing is loaded. An unreadable file or invalid JSON
// panics: a broken config must stop startup.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.JWTSecret, c.JWTSecret)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setInt(&config.BcryptCost, c.BcryptCost)
	setString(&config.RegistrationSecret, c.RegistrationSecret)
	setString(&config.ServiceAuthToken, c.ServiceAuthToken)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.JanitorSchedule, c.JanitorSchedule)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setInt(&config.LoginRateLimit, c.LoginRateLimit)
	setInt(&config.ForgotPasswordRateLimit, c.ForgotPasswordRateLimit)
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	if c.SMTPSkipVerify {
		config.SMTPSkipVerify = true
	}
	setString(&config.MailFrom, c.MailFrom)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
