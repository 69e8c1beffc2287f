package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{"WORKTRACK_AUTH_SECRET": testSecret}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, LedgerMemory, cfg.Ledger)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 5, cfg.Password.HistorySize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Hour, cfg.PurgeInterval)
}

func TestFromEnvPicksLedgerBackend(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"WORKTRACK_AUTH_SECRET": testSecret,
		"WORKTRACK_PG_DSN":      "postgres://localhost/worktrack",
	}))
	require.NoError(t, err)
	assert.Equal(t, LedgerPostgres, cfg.Ledger)

	cfg, err = FromEnv(lookupFrom(map[string]string{
		"WORKTRACK_AUTH_SECRET": testSecret,
		"WORKTRACK_PG_DSN":      "postgres://localhost/worktrack",
		"WORKTRACK_REDIS_ADDR":  "localhost:6379",
	}))
	require.NoError(t, err)
	assert.Equal(t, LedgerRedis, cfg.Ledger)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"WORKTRACK_AUTH_SECRET": "short"},
		"bad duration":   {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ACCESS_TTL": "soon"},
		"ttl order":      {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ACCESS_TTL": "2h", "WORKTRACK_REFRESH_TTL": "1h"},
		"bad integer":    {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_PASSWORD_HISTORY": "many"},
		"unknown ledger": {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_LEDGER": "etcd"},
		"redis no addr":  {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_LEDGER": "redis"},
		"half bootstrap": {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_BOOTSTRAP_ADMIN_EMAIL": "root@example.com"},
		"threads wrap":   {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ARGON_THREADS": "256"},
		"zero threads":   {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ARGON_THREADS": "0"},
		"time overflow":  {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ARGON_TIME": "4294967296"},
		"tiny memory":    {"WORKTRACK_AUTH_SECRET": testSecret, "WORKTRACK_ARGON_MEMORY_KIB": "4"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(env))
			assert.Error(t, err)
		})
	}
}

func TestFromEnvArgonBounds(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"WORKTRACK_AUTH_SECRET":      testSecret,
		"WORKTRACK_ARGON_THREADS":    "255",
		"WORKTRACK_ARGON_TIME":       "4294967295",
		"WORKTRACK_ARGON_MEMORY_KIB": "65536",
	}))
	require.NoError(t, err)
	assert.Equal(t, uint8(255), cfg.Password.Parallelism)
	assert.Equal(t, uint32(4294967295), cfg.Password.Time)
	assert.Equal(t, uint32(65536), cfg.Password.MemoryKiB)

	_, err = FromEnv(lookupFrom(map[string]string{
		"WORKTRACK_AUTH_SECRET":   testSecret,
		"WORKTRACK_ARGON_THREADS": "300",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKTRACK_ARGON_THREADS")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WORKTRACK_AUTH_SECRET="+testSecret+"\nWORKTRACK_HTTP_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("WORKTRACK_AUTH_SECRET")
		_ = os.Unsetenv("WORKTRACK_HTTP_ADDR")
	})

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []byte(testSecret), cfg.Token.Secret)
}
