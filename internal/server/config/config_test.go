package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":3001", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Empty(t, c.DatabaseDSN, "dsn carries credentials and must be provisioned")
	assert.Equal(t, 7*24*time.Hour, c.TokenValidityDuration)
	assert.Equal(t, time.Hour, c.ResetTokenValidityDuration)
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, 15*time.Minute, c.RateLimitWindow)
	assert.Empty(t, c.JWTSecret, "signing secret must never have a default")
	assert.Empty(t, c.RegistrationSecret, "registration secret must never have a default")
}

func TestValidate(t *testing.T) {
	var c Config
	c.LoadDefaults()

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	c.JWTSecret = "s3cr3t"
	c.DatabaseDSN = "postgres://db/dealerdesk"
	assert.NoError(t, c.Validate())

	c.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.1", "proxy.internal"}
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"proxy.internal"`)
	c.TrustedProxies = nil

	c.BcryptCost = 99
	c.ResetTokenValidityDuration = 0
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bcrypt cost")
	assert.Contains(t, err.Error(), "reset token validity")
}

func TestLoadConfig_LayersEnvOverDefaults(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server"}

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_ADDR", "")

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, "from-env", c.JWTSecret)
	assert.Equal(t, ":3001", c.HTTPAddr)
	assert.Empty(t, c.DatabaseDSN)
}

func TestLoadConfig_EnvLifetimeSurvivesFlagLayer(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-s", "from-flag"}

	for env, want := range map[string]time.Duration{"90s": 90 * time.Second, "30s": 30 * time.Second} {
		t.Setenv("JWT_EXPIRES_IN", env)

		c := LoadConfig()
		assert.Equal(t, want, c.TokenValidityDuration, "JWT_EXPIRES_IN=%s", env)
	}

	os.Args = []string{"server", "-t", "5"}
	c := LoadConfig()
	assert.Equal(t, 5*time.Minute, c.TokenValidityDuration, "an explicit -t still wins")
}

func TestLoadConfig_FlagsWinOverEnv(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-s", "from-flag"}

	t.Setenv("JWT_SECRET", "from-env")

	c := LoadConfig()
	assert.Equal(t, "from-flag", c.JWTSecret)
}
