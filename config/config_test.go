package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	req.NoError(err)
	req.Equal("4000", cfg.Port)
	req.Equal([]string{"*"}, cfg.AllowedOrigins)
	req.Equal(7*24*time.Hour, cfg.TokenTTL)
	req.Equal(256, cfg.Socket.SendBuffer)
	req.False(cfg.Redis.Enabled())
	req.False(cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("TOKEN_TTL", "1h")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("9000", cfg.Port)
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	req.True(cfg.Redis.Enabled())
	req.Equal("cache:6379", cfg.Redis.Addr())
	req.Equal(time.Hour, cfg.TokenTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"empty secret", "JWT_SECRET", " "},
		{"zero ttl", "TOKEN_TTL", "0s"},
		{"ping after pong", "PING_PERIOD", "2m"},
		{"bad duration", "WRITE_WAIT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
