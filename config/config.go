package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string        `env:"PORT" envDefault:"4000"`
	Environment    string        `env:"ENVIRONMENT" envDefault:"development"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev_secret"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"data/chat.db"`
	UploadsDir     string        `env:"UPLOADS_DIR" envDefault:"uploads"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	Redis          RedisConfig
	Socket         SocketConfig
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// SocketConfig tunes the per-connection WebSocket pumps.
type SocketConfig struct {
	SendBuffer int           `env:"SEND_BUFFER" envDefault:"256"`
	ReadLimit  int64         `env:"READ_LIMIT" envDefault:"65536"`
	PingPeriod time.Duration `env:"PING_PERIOD" envDefault:"54s"`
	PongWait   time.Duration `env:"PONG_WAIT" envDefault:"60s"`
	WriteWait  time.Duration `env:"WRITE_WAIT" envDefault:"10s"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.Socket.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.Socket.SendBuffer)
	}
	if c.Socket.PingPeriod >= c.Socket.PongWait {
		return fmt.Errorf("PING_PERIOD (%s) must be shorter than PONG_WAIT (%s)", c.Socket.PingPeriod, c.Socket.PongWait)
	}
	return nil
}
