// Package config loads service settings from defaults, an optional YAML
// file, an optional .env file and SCORELENS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fractal-lba/scorelens/internal/ensemble"
	"github.com/fractal-lba/scorelens/internal/model"
	"github.com/fractal-lba/scorelens/internal/registry"
	"github.com/fractal-lba/scorelens/internal/training"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SCORELENS_SERVER_ADDR.
const EnvPrefix = "SCORELENS"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Training TrainingConfig `mapstructure:"training" validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging" validate:"required"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst           int           `mapstructure:"burst" validate:"gte=0"`
	MaxBatch        int           `mapstructure:"max_batch" validate:"gte=1"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsUser     string        `mapstructure:"metrics_user"`
	MetricsPassword string        `mapstructure:"metrics_password" validate:"required_with=MetricsUser"`
}

// StoreConfig selects and configures the registry backend.
type StoreConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=file redis postgres sqlite"`
	Dir           string `mapstructure:"dir" validate:"required_if=Backend file"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0,lte=15"`
	PostgresDSN   string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres"`
	SQLitePath    string `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
	CacheSize     int    `mapstructure:"cache_size" validate:"gte=1"`
}

// TrainingConfig holds the training hyperparameters.
type TrainingConfig struct {
	TestFraction   float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	Seed           int64   `mapstructure:"seed"`
	Estimators     int     `mapstructure:"estimators" validate:"gte=1"`
	MaxDepth       int     `mapstructure:"max_depth" validate:"gte=1"`
	LearningRate   float64 `mapstructure:"learning_rate" validate:"gt=0,lte=1"`
	Subsample      float64 `mapstructure:"subsample" validate:"gt=0,lte=1"`
	MinSplit       int     `mapstructure:"min_split" validate:"gte=2"`
	MinLeaf        int     `mapstructure:"min_leaf" validate:"gte=1"`
	BackgroundSize int     `mapstructure:"background_size" validate:"gte=1"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	ens := ensemble.DefaultConfig()
	mdl := model.DefaultConfig()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.burst", 100)
	v.SetDefault("server.max_batch", 1000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics_user", "")
	v.SetDefault("server.metrics_password", "")

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "models")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.sqlite_path", "models/registry.db")
	v.SetDefault("store.cache_size", 4)

	v.SetDefault("training.test_fraction", mdl.TestFraction)
	v.SetDefault("training.seed", mdl.Seed)
	v.SetDefault("training.estimators", ens.NEstimators)
	v.SetDefault("training.max_depth", ens.MaxDepth)
	v.SetDefault("training.learning_rate", ens.LearningRate)
	v.SetDefault("training.subsample", ens.Subsample)
	v.SetDefault("training.min_split", ens.MinSamplesSplit)
	v.SetDefault("training.min_leaf", ens.MinSamplesLeaf)
	v.SetDefault("training.background_size", training.DefaultConfig().BackgroundSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "scorelens")
	v.SetDefault("tracing.environment", "development")
}

// Load reads configuration into v. path may be empty, in which case
// ./scorelens.yaml is used when present. A .env file in the working
// directory is loaded first if it exists.
func Load(v *viper.Viper, path string) (*Config, error) {
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("scorelens")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TrainingPipeline converts the training section into a pipeline config.
func (c *Config) TrainingPipeline() training.Config {
	t := c.Training
	return training.Config{
		Model: model.Config{
			TestFraction: t.TestFraction,
			Seed:         t.Seed,
			Ensemble: ensemble.Config{
				NEstimators:     t.Estimators,
				MaxDepth:        t.MaxDepth,
				LearningRate:    t.LearningRate,
				Subsample:       t.Subsample,
				MinSamplesSplit: t.MinSplit,
				MinSamplesLeaf:  t.MinLeaf,
				Seed:            t.Seed,
			},
		},
		BackgroundSize: t.BackgroundSize,
	}
}

// OpenStore connects the configured registry backend.
func (c *Config) OpenStore() (registry.Store, error) {
	st := c.Store
	switch st.Backend {
	case "file":
		return registry.NewFileStore(st.Dir)
	case "redis":
		return registry.NewRedisStore(st.RedisAddr, st.RedisPassword, st.RedisDB)
	case "postgres":
		return registry.NewPostgresStore(st.PostgresDSN)
	case "sqlite":
		return registry.NewSQLiteStore(st.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", st.Backend)
	}
}

// OpenRegistry opens the store and wraps it in a registry. Closing the
// registry closes the store.
func (c *Config) OpenRegistry(logger *slog.Logger) (*registry.Registry, error) {
	store, err := c.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store.Backend, err)
	}
	reg, err := registry.New(store,
		registry.WithLogger(logger),
		registry.WithCacheSize(c.Store.CacheSize))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return reg, nil
}
