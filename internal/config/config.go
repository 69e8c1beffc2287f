// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"worktrack.org/internal/auth"
	"worktrack.org/internal/obs"
)

const envPrefix = "WORKTRACK_"

// Ledger backends.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Ledger        string

	Token    auth.TokenConfig
	Password auth.PasswordConfig
	Log      obs.LogConfig

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64

	BreakerFailures int
	BreakerTimeout  time.Duration
	PurgeInterval   time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads .env files (missing files are ignored; variables already set in
// the process win) and then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Unset values take defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	pw := auth.DefaultPasswordConfig()
	cfg := Config{
		HTTPAddr:      r.str("HTTP_ADDR", ":8080"),
		GRPCAddr:      r.str("GRPC_ADDR", ":9090"),
		PGDSN:         r.str("PG_DSN", ""),
		RedisAddr:     r.str("REDIS_ADDR", ""),
		RedisPassword: r.str("REDIS_PASSWORD", ""),
		RedisDB:       r.integer("REDIS_DB", 0),
		Ledger:        strings.ToLower(r.str("LEDGER", "")),
		Token: auth.TokenConfig{
			Secret:     []byte(r.str("AUTH_SECRET", "")),
			Issuer:     r.str("AUTH_ISSUER", "worktrack"),
			AccessTTL:  r.duration("ACCESS_TTL", 15*time.Minute),
			RefreshTTL: r.duration("REFRESH_TTL", 14*24*time.Hour),
		},
		Password: auth.PasswordConfig{
			Time:        uint32(r.bounded("ARGON_TIME", int64(pw.Time), 1, math.MaxUint32)),
			MemoryKiB:   uint32(r.bounded("ARGON_MEMORY_KIB", int64(pw.MemoryKiB), 8, math.MaxUint32)),
			Parallelism: uint8(r.bounded("ARGON_THREADS", int64(pw.Parallelism), 1, math.MaxUint8)),
			KeyLength:   pw.KeyLength,
			SaltLength:  pw.SaltLength,
			MinLength:   r.integer("PASSWORD_MIN_LENGTH", pw.MinLength),
			MinClasses:  r.integer("PASSWORD_MIN_CLASSES", pw.MinClasses),
			HistorySize: r.integer("PASSWORD_HISTORY", pw.HistorySize),
		},
		Log: obs.LogConfig{
			Level: r.str("LOG_LEVEL", "info"),
			File:  r.str("LOG_FILE", ""),
		},
		RateBurst:              r.integer("RATE_BURST", 10),
		RatePerSecond:          r.integer("RATE_RPS", 5),
		MaxBodyBytes:           int64(r.integer("MAX_BODY_BYTES", 1<<20)),
		BreakerFailures:        r.integer("BREAKER_FAILURES", 5),
		BreakerTimeout:         r.duration("BREAKER_TIMEOUT", 10*time.Second),
		PurgeInterval:          r.duration("PURGE_INTERVAL", time.Hour),
		BootstrapAdminEmail:    r.str("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: r.str("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if cfg.Ledger == "" {
		switch {
		case cfg.RedisAddr != "":
			cfg.Ledger = LedgerRedis
		case cfg.PGDSN != "":
			cfg.Ledger = LedgerPostgres
		default:
			cfg.Ledger = LedgerMemory
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Token.Secret) < 32 {
		errs = append(errs, errors.New(envPrefix+"AUTH_SECRET must be at least 32 bytes"))
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		errs = append(errs, errors.New(envPrefix+"REFRESH_TTL must exceed "+envPrefix+"ACCESS_TTL"))
	}
	switch c.Ledger {
	case LedgerMemory:
	case LedgerPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("postgres ledger requires "+envPrefix+"PG_DSN"))
		}
	case LedgerRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis ledger requires "+envPrefix+"REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger))
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		errs = append(errs, errors.New("rate limit burst and rps must be positive"))
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("bootstrap admin needs both email and password"))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s%s: invalid integer %q", envPrefix, key, raw))
		return def
	}
	return n
}

// bounded reads an integer that must fit in [lo, hi].
func (r *reader) bounded(key string, def, lo, hi int64) int64 {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < lo || n > hi {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %q is not in [%d, %d]", envPrefix, key, raw, lo, hi))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s%s: invalid duration %q", envPrefix, key, raw))
		return def
	}
	return d
}
