package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/ensemble"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)

	pc := cfg.TrainingPipeline()
	assert.Equal(t, ensemble.DefaultConfig(), pc.Model.Ensemble)
	assert.Equal(t, 0.2, pc.Model.TestFraction)
	assert.Equal(t, int64(42), pc.Model.Seed)
	assert.Equal(t, 100, pc.BackgroundSize)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  allowed_origins: ["https://example.com"]
store:
  backend: sqlite
  sqlite_path: /tmp/registry.db
training:
  estimators: 25
logging:
  format: json
`), 0o600))

	t.Setenv("SCORELENS_LOGGING_LEVEL", "debug")
	t.Setenv("SCORELENS_TRAINING_MAX_DEPTH", "3")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 25, cfg.Training.Estimators)
	assert.Equal(t, 3, cfg.Training.MaxDepth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(viper.New(), "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	bad := *cfg
	bad.Store.Backend = "s3"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Training.TestFraction = 1.5
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Store.Backend = "postgres"
	bad.Store.PostgresDSN = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Logging.Level = "trace"
	assert.Error(t, bad.Validate())
}

func TestOpenRegistryFileBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCORELENS_STORE_DIR", filepath.Join(t.TempDir(), "models"))

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	reg, err := cfg.OpenRegistry(nil)
	require.NoError(t, err)
	defer reg.Close()

	versions, err := reg.Versions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "etcd"}}
	_, err := cfg.OpenStore()
	assert.Error(t, err)
}
