package config

import (
	"strconv"
	"strings"
	"time"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// parseEnv overlays values from environment variables. Unparsable numeric
// or duration values are ignored and the previous value is kept.
func parseEnv(config *Config, lookup lookupFunc) {
	e := envReader{lookup: lookup}

	e.str("HTTP_ADDR", &config.HTTPAddr)
	e.str("GRPC_ADDR", &config.GRPCAddr)
	e.str("DATABASE_URL", &config.DatabaseDSN)
	e.str("LOG_LEVEL", &config.LogLevel)
	e.str("JWT_SECRET", &config.JWTSecret)
	e.duration("JWT_EXPIRES_IN", &config.TokenValidityDuration)
	e.integer("BCRYPT_COST", &config.BcryptCost)
	e.str("REGISTRATION_SECRET", &config.RegistrationSecret)
	e.str("SERVICE_AUTH_TOKEN", &config.ServiceAuthToken)
	e.duration("RESET_TOKEN_TTL", &config.ResetTokenValidityDuration)
	e.str("FRONTEND_URL", &config.FrontendURL)
	e.str("JANITOR_SCHEDULE", &config.JanitorSchedule)
	e.str("REDIS_ADDR", &config.RedisAddr)
	e.str("REDIS_PASSWORD", &config.RedisPassword)
	e.integer("REDIS_DB", &config.RedisDB)
	e.integer("LOGIN_RATE_LIMIT", &config.LoginRateLimit)
	e.integer("FORGOT_PASSWORD_RATE_LIMIT", &config.ForgotPasswordRateLimit)
	e.duration("RATE_LIMIT_WINDOW", &config.RateLimitWindow)
	e.list("TRUSTED_PROXIES", &config.TrustedProxies)
	e.str("SMTP_HOST", &config.SMTPHost)
	e.str("SMTP_USER", &config.SMTPUser)
	e.str("SMTP_PASSWORD", &config.SMTPPassword)
	e.boolean("SMTP_SKIP_VERIFY", &config.SMTPSkipVerify)
	e.str("MAIL_FROM", &config.MailFrom)
}

type envReader struct {
	lookup lookupFunc
}

func (e envReader) get(key string) (string, bool) {
	val, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

func (e envReader) str(key string, dst *string) {
	if val, ok := e.get(key); ok {
		*dst = val
	}
}

// list splits a comma separated value, dropping empty items.
func (e envReader) list(key string, dst *[]string) {
	val, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e envReader) integer(key string, dst *int) {
	if val, ok := e.get(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func (e envReader) boolean(key string, dst *bool) {
	if val, ok := e.get(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

// duration accepts Go duration strings, with a KEY_SECONDS fallback for
// integer seconds.
func (e envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.get(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dst = parsed
			return
		}
	}
	if val, ok := e.get(key + "_SECONDS"); ok {
		if seconds, err := strconv.Atoi(val); err == nil {
			*dst = time.Duration(seconds) * time.Second
		}
	}
}
