package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "postgres://localhost/scribex")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.ServerPort)
	require.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	require.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	require.Equal(t, RevocationMemory, cfg.RevocationBackend)
	require.False(t, cfg.SelfRegistrationEnabled)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "postgres://localhost/scribex")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("REVOCATION_BACKEND", "Redis")
	t.Setenv("SELF_REGISTRATION_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	require.Equal(t, RevocationRedis, cfg.RevocationBackend)
	require.True(t, cfg.SelfRegistrationEnabled)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.Equal(t, 12, cfg.BcryptCost)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerPort:        "8080",
			RequestTimeout:    time.Second,
			DatabaseURL:       "postgres://localhost/scribex",
			DBMaxConns:        4,
			DBMinConns:        1,
			JWTSecret:         testSecret,
			JWTAccessTTL:      time.Minute,
			JWTRefreshTTL:     time.Hour,
			JWTResetTTL:       time.Minute,
			BcryptCost:        10,
			RevocationBackend: RevocationMemory,
			LogFormat:         "pretty",
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing secret":        func(c *Config) { c.JWTSecret = "" },
		"short secret":          func(c *Config) { c.JWTSecret = "short" },
		"missing database":      func(c *Config) { c.DatabaseURL = "" },
		"refresh before access": func(c *Config) { c.JWTRefreshTTL = c.JWTAccessTTL },
		"bcrypt cost":           func(c *Config) { c.BcryptCost = 2 },
		"unknown backend":       func(c *Config) { c.RevocationBackend = "etcd" },
		"redis without addr": func(c *Config) {
			c.RevocationBackend = RevocationRedis
			c.RedisAddr = ""
		},
		"bootstrap without password": func(c *Config) {
			c.BootstrapAdminUsername = "root"
			c.BootstrapAdminEmail = "root@school.edu"
		},
		"log format": func(c *Config) { c.LogFormat = "xml" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
