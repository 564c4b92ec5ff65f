// Package config loads service settings from the environment.
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	// DefaultPasswordSalt is the process-wide salt used when PASSWORD_SALT is unset.
	DefaultPasswordSalt = "danta"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	HTTPAddr string
	// Storage selects the user repository.
	Storage string
	// SessionStore selects where sessions live.
	SessionStore string

	SessionSecret []byte
	// SessionSecretGenerated is set when SESSION_SECRET was empty and a
	// random per-process secret is in use.
	SessionSecretGenerated bool
	SessionIssuer          string
	SessionTTL             time.Duration
	SessionPurgeInterval   time.Duration
	CookieName             string
	CookieSecure           bool

	PasswordSalt string
	Argon2       credential.Params

	AdminDefaultPassword string
	IdempotentLogout     bool
	SnowflakeNode        int64
	CORSOrigins          []string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:             fallback(os.Getenv("HTTP_ADDR"), "0.0.0.0:8431"),
		Storage:              strings.ToLower(fallback(os.Getenv("STORAGE"), StoragePostgres)),
		SessionStore:         strings.ToLower(fallback(os.Getenv("SESSION_STORE"), StorageMemory)),
		SessionIssuer:        fallback(os.Getenv("SESSION_ISSUER"), "service-user"),
		SessionTTL:           duration("SESSION_TTL", session.DefaultTTL),
		SessionPurgeInterval: duration("SESSION_PURGE_INTERVAL", 5*time.Minute),
		CookieName:           fallback(os.Getenv("SESSION_COOKIE_NAME"), "SESSION"),
		CookieSecure:         flag("SESSION_COOKIE_SECURE"),
		PasswordSalt:         fallback(os.Getenv("PASSWORD_SALT"), DefaultPasswordSalt),
		Argon2: credential.Params{
			Time:    uint32(uintEnv("PASSWORD_ARGON2_TIME", uint64(credential.DefaultParams.Time), 32)),
			Memory:  uint32(uintEnv("PASSWORD_ARGON2_MEMORY", uint64(credential.DefaultParams.Memory), 32)),
			Threads: uint8(uintEnv("PASSWORD_ARGON2_THREADS", uint64(credential.DefaultParams.Threads), 8)),
		},
		AdminDefaultPassword: fallback(os.Getenv("ADMIN_DEFAULT_PASSWORD"), "12345678"),
		IdempotentLogout:     flag("AUTH_IDEMPOTENT_LOGOUT"),
		SnowflakeNode:        utilities.NodeFromEnv(),
		CORSOrigins:          parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return Config{}, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}
	if cfg.SessionStore != StoragePostgres && cfg.SessionStore != StorageMemory {
		return Config{}, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.SessionStore)
	}

	if secret := strings.TrimSpace(os.Getenv("SESSION_SECRET")); secret != "" {
		cfg.SessionSecret = []byte(secret)
	} else {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return Config{}, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.SessionSecret = b
		cfg.SessionSecretGenerated = true
	}
	return cfg, nil
}

// NeedsDatabase reports whether any component is backed by postgres.
func (c Config) NeedsDatabase() bool {
	return c.Storage == StoragePostgres || c.SessionStore == StoragePostgres
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func flag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && d > 0 {
		return d
	}
	return def
}

func uintEnv(key string, def uint64, bits int) uint64 {
	if v, err := strconv.ParseUint(strings.TrimSpace(os.Getenv(key)), 10, bits); err == nil && v > 0 {
		return v
	}
	return def
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
