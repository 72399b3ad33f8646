package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ServerPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr string

	JWTSecret string

	// Call ringing timeout before the session transitions to ended{timeout}.
	RingTimeout time.Duration
	// Typing indicator expiry when no explicit stop arrives.
	TypingTTL time.Duration

	LogLevel string
}

var defaults = map[string]any{
	"server.port":       "8080",
	"db.host":           "localhost",
	"db.port":           "5432",
	"db.user":           "sema",
	"db.password":       "sema_dev_password",
	"db.name":           "sema",
	"redis.addr":        "localhost:6379",
	"jwt.secret":        "dev-secret-change-me",
	"call.ring_timeout": "45s",
	"typing.ttl":        "5s",
	"log.level":         "info",
}

// Load builds the config from defaults overlaid with SEMA_* environment
// variables (SEMA_DB_HOST → db.host).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Keys are two segments deep, so only the first underscore separates
	// them: SEMA_CALL_RING_TIMEOUT → call.ring_timeout.
	err := k.Load(env.Provider("SEMA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SEMA_")), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{
		ServerPort:  k.String("server.port"),
		DBHost:      k.String("db.host"),
		DBPort:      k.String("db.port"),
		DBUser:      k.String("db.user"),
		DBPassword:  k.String("db.password"),
		DBName:      k.String("db.name"),
		RedisAddr:   k.String("redis.addr"),
		JWTSecret:   k.String("jwt.secret"),
		RingTimeout: k.Duration("call.ring_timeout"),
		TypingTTL:   k.Duration("typing.ttl"),
		LogLevel:    k.String("log.level"),
	}

	if cfg.RingTimeout <= 0 {
		return nil, fmt.Errorf("call.ring_timeout must be positive, got %s", k.String("call.ring_timeout"))
	}
	if cfg.TypingTTL <= 0 {
		return nil, fmt.Errorf("typing.ttl must be positive, got %s", k.String("typing.ttl"))
	}
	return cfg, nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
