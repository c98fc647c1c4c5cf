// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"inventra.io/internal/auth"
)

const prefix = "INVENTRA_"

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPAddr    string
	GRPCAddr    string
	PostgresDSN string
	RedisURL    string
	SentryDSN   string
	LogLevel    string

	Tokens      auth.TokenConfig
	Hash        auth.HashParams
	HashWorkers int

	CORSOrigins  []string
	MaxBodyBytes int64
	// TrustProxy honors X-Forwarded-For / X-Real-IP. Enable only behind a
	// proxy that overwrites those headers.
	TrustProxy bool

	// BootstrapAdmin, when Email is set, is created at startup unless an
	// account with that email already exists.
	BootstrapAdmin BootstrapAdmin
}

type BootstrapAdmin struct {
	Email    string
	Username string
	Password string
}

// Production reports whether the process runs in production mode.
func (c Config) Production() bool { return c.Environment == EnvProduction }

// Load reads a .env file when present, then the INVENTRA_* variables.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Environment:  strings.ToLower(e.str("ENV", EnvDevelopment)),
		HTTPAddr:     e.str("HTTP_ADDR", ":8080"),
		GRPCAddr:     e.optional("GRPC_ADDR", ":9090"),
		PostgresDSN:  e.str("PG_DSN", ""),
		RedisURL:     e.str("REDIS_URL", ""),
		SentryDSN:    e.str("SENTRY_DSN", ""),
		LogLevel:     e.str("LOG_LEVEL", "info"),
		CORSOrigins:  e.list("CORS_ORIGINS", []string{"http://localhost:3000"}),
		MaxBodyBytes: int64(e.int("MAX_BODY_BYTES", 1<<20)),
		HashWorkers:  e.int("HASH_WORKERS", 0),
		TrustProxy:   e.bool("TRUST_PROXY_HEADERS"),
		BootstrapAdmin: BootstrapAdmin{
			Email:    e.str("BOOTSTRAP_ADMIN_EMAIL", ""),
			Username: e.str("BOOTSTRAP_ADMIN_USERNAME", "admin"),
			Password: e.str("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return Config{}, fmt.Errorf("%sENV must be one of development, test, production", prefix)
	}

	accessTTL, err := auth.ParseTTL(e.str("JWT_ACCESS_TTL", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("%sJWT_ACCESS_TTL: %w", prefix, err)
	}
	refreshTTL, err := auth.ParseTTL(e.str("JWT_REFRESH_TTL", "7d"))
	if err != nil {
		return Config{}, fmt.Errorf("%sJWT_REFRESH_TTL: %w", prefix, err)
	}
	accessSecret := e.str("JWT_ACCESS_SECRET", "")
	refreshSecret := e.str("JWT_REFRESH_SECRET", "")
	switch {
	case accessSecret == "" || refreshSecret == "":
		return Config{}, fmt.Errorf("%sJWT_ACCESS_SECRET and %sJWT_REFRESH_SECRET are required", prefix, prefix)
	case accessSecret == refreshSecret:
		return Config{}, errors.New("access and refresh token secrets must differ")
	}
	cfg.Tokens = auth.TokenConfig{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Issuer:        e.str("JWT_ISSUER", auth.DefaultIssuer),
		Audience:      e.str("JWT_AUDIENCE", auth.DefaultAudience),
	}

	hash := auth.LightHashParams()
	if cfg.Production() {
		hash = auth.DefaultHashParams()
	}
	hash.Memory = uint32(e.bounded("HASH_MEMORY_KIB", int(hash.Memory), math.MaxUint32))
	hash.Iterations = uint32(e.bounded("HASH_ITERATIONS", int(hash.Iterations), math.MaxUint32))
	hash.Parallelism = uint8(e.bounded("HASH_PARALLELISM", int(hash.Parallelism), math.MaxUint8))
	hash.KeyLength = uint32(e.bounded("HASH_KEY_LENGTH", int(hash.KeyLength), math.MaxUint32))
	if e.err != nil {
		return Config{}, e.err
	}
	if err := hash.Validate(); err != nil {
		return Config{}, fmt.Errorf("password hash parameters: %w", err)
	}
	cfg.Hash = hash

	if cfg.BootstrapAdmin.Email != "" && cfg.BootstrapAdmin.Password == "" {
		return Config{}, fmt.Errorf("%sBOOTSTRAP_ADMIN_PASSWORD is required when %sBOOTSTRAP_ADMIN_EMAIL is set", prefix, prefix)
	}
	return cfg, nil
}

type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(prefix + key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return def
}

// optional is like str but keeps an explicitly empty value, so a feature
// with a default can be switched off.
func (e *env) optional(key, def string) string {
	if v, ok := e.lookup(prefix + key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) bool(key string) bool {
	raw := e.str(key, "")
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s%s must be a boolean", prefix, key)
	}
	return b
}

// bounded is int with an upper limit for values narrowed to smaller types.
func (e *env) bounded(key string, def, max int) int {
	n := e.int(key, def)
	if n > max {
		if e.err == nil {
			e.err = fmt.Errorf("%s%s must be at most %d", prefix, key, max)
		}
		return def
	}
	return n
}

// int records the first malformed value instead of silently using def.
func (e *env) int(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		if e.err == nil {
			e.err = fmt.Errorf("%s%s must be a non-negative integer", prefix, key)
		}
		return def
	}
	return n
}

func (e *env) list(key string, def []string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
