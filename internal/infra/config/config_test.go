package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, MessagesMongo, cfg.MessageStore)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 168*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.Dev())
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("KAFKA_BROKERS=k1:9092, k2:9092\nHTTP_ADDR=:7000\n"), 0o600))
	t.Setenv("APP_ENV", "dev")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "")
	require.NoError(t, os.Unsetenv("KAFKA_BROKERS"))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadValidation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.env")

	t.Run("mongo store needs uri", func(t *testing.T) {
		t.Setenv("APP_ENV", "dev")
		t.Setenv("STORE", "mongo")
		t.Setenv("MONGO_URI", "")
		_, err := Load(missing)
		require.ErrorContains(t, err, "MONGO_URI")
	})
	t.Run("jwt secret outside dev", func(t *testing.T) {
		t.Setenv("APP_ENV", "prod")
		t.Setenv("STORE", "memory")
		t.Setenv("JWT_SECRET", "")
		_, err := Load(missing)
		require.ErrorContains(t, err, "JWT_SECRET")
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("APP_ENV", "dev")
		t.Setenv("IDEMP_TTL", "soon")
		_, err := Load(missing)
		require.ErrorContains(t, err, "IDEMP_TTL")
	})
	t.Run("bad consistency", func(t *testing.T) {
		t.Setenv("APP_ENV", "dev")
		t.Setenv("SCYLLA_CONSISTENCY", "most")
		_, err := Load(missing)
		require.Error(t, err)
	})
}
