package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/internal/config"
)

const authority = "0x000000000000000000000000000000000000a0a0"

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TENURE_TENURE_AUTHORITY", authority)
	t.Setenv("TENURE_STORE_DRIVER", "memory")
	t.Setenv("TENURE_SERVER_ADDR", ":7000")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "wei", cfg.Tenure.Currency)
	assert.Equal(t, tenure.DefaultFreshnessWindow, cfg.Tenure.FreshnessWindow)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Len(t, cfg.EngineOptions(), 3)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "tenure.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8181"
store:
  driver: postgres
  postgres_dsn: postgres://localhost/tenure
tenure:
  authority: "`+authority+`"
  system_address: "0x00000000000000000000000000000000000a11ce"
  freshness_window: 2m
`), 0o600))
	t.Setenv("TENURE_SERVER_ADDR", ":9191")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.Server.Addr)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Tenure.FreshnessWindow)
	assert.Len(t, cfg.EngineOptions(), 4)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &config.Config{
		Store:  config.StoreConfig{Driver: "cassandra"},
		Tenure: config.TenureConfig{Authority: "nope"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, tenure.ErrInvalidInput)

	var multi tenure.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 4)
}

func TestValidateSqliteNeedsPath(t *testing.T) {
	cfg := &config.Config{
		Store:  config.StoreConfig{Driver: config.DriverSqlite},
		Tenure: config.TenureConfig{Authority: authority, Currency: "wei", FreshnessWindow: time.Minute},
	}

	err := cfg.Validate()
	require.Error(t, err)

	var multi tenure.MultiError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Errors, 1)
	var verr tenure.ValidationError
	require.ErrorAs(t, multi.Errors[0], &verr)
	assert.Equal(t, "store.sqlite_path", verr.Field)

	cfg.Store.SqlitePath = filepath.Join(t.TempDir(), "tenure.db")
	assert.NoError(t, cfg.Validate())
}
