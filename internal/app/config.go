package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/upliftcs/upliftcs-backend/internal/clients/kafka"
	"github.com/upliftcs/upliftcs-backend/internal/clients/openai"
	"github.com/upliftcs/upliftcs-backend/internal/clients/redis"
	"github.com/upliftcs/upliftcs-backend/internal/data/db"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/envutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
	"github.com/upliftcs/upliftcs-backend/internal/temporalx"
)

type Config struct {
	Port           string   `yaml:"port"`
	Environment    string   `yaml:"environment"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RequestTimeout Duration `yaml:"request_timeout"`

	DB DBConfig `yaml:"db"`

	GeneratorTimeout Duration `yaml:"content_generator_timeout"`

	SweepInterval    Duration `yaml:"sweep_interval"`
	SweepConcurrency int      `yaml:"sweep_concurrency"`
	SweepBatchSize   int      `yaml:"sweep_batch_size"`
	ExecutionLease   Duration `yaml:"execution_lease"`

	SeedDefaultPlaybooks bool   `yaml:"seed_default_playbooks"`
	MetricsAddr          string `yaml:"metrics_addr"`

	// Loaded from the environment only; credentials never live in the file.
	OpenAI   openai.Config    `yaml:"-"`
	Redis    redis.Config     `yaml:"-"`
	Kafka    kafka.Config     `yaml:"-"`
	Temporal temporalx.Config `yaml:"-"`
}

type DBConfig struct {
	Driver       string   `yaml:"driver"`
	Host         string   `yaml:"host"`
	Port         string   `yaml:"port"`
	Name         string   `yaml:"name"`
	SQLitePath   string   `yaml:"sqlite_path"`
	MaxOpenConns int      `yaml:"max_open_conns"`
	SlowQuery    Duration `yaml:"slow_query"`
}

// Duration reads "90s"-style strings from yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func defaultConfig() Config {
	return Config{
		Port:                 "8080",
		Environment:          "development",
		CORSOrigins:          []string{"http://localhost:5173"},
		RequestTimeout:       Duration(2 * time.Minute),
		DB:                   DBConfig{Driver: db.DriverPostgres, Host: "localhost", Port: "5432", Name: "upliftcs", SQLitePath: "upliftcs.db", SlowQuery: Duration(time.Second)},
		GeneratorTimeout:     Duration(15 * time.Second),
		SweepInterval:        Duration(time.Minute),
		SweepConcurrency:     4,
		SweepBatchSize:       200,
		ExecutionLease:       Duration(5 * time.Minute),
		SeedDefaultPlaybooks: true,
	}
}

// LoadConfig layers defaults, then CONFIG_FILE (yaml) when set, then env.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}

	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.Environment = envutil.String("ENVIRONMENT", cfg.Environment)
	cfg.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.RequestTimeout = Duration(envutil.Seconds("REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout.Std()))

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)
	cfg.DB.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)

	cfg.GeneratorTimeout = Duration(envutil.Seconds("CONTENT_GENERATOR_TIMEOUT_SECONDS", cfg.GeneratorTimeout.Std()))
	cfg.SweepInterval = Duration(envutil.Seconds("SWEEP_INTERVAL_SECONDS", cfg.SweepInterval.Std()))
	cfg.SweepConcurrency = envutil.Int("SWEEP_CONCURRENCY", cfg.SweepConcurrency)
	cfg.SweepBatchSize = envutil.Int("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
	cfg.ExecutionLease = Duration(envutil.Seconds("EXECUTION_LEASE_SECONDS", cfg.ExecutionLease.Std()))
	cfg.SeedDefaultPlaybooks = envutil.Bool("SEED_DEFAULT_PLAYBOOKS", cfg.SeedDefaultPlaybooks)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)

	cfg.OpenAI = openai.ConfigFromEnv()
	cfg.Redis = redis.ConfigFromEnv()
	cfg.Kafka = kafka.ConfigFromEnv()
	cfg.Temporal = temporalx.LoadConfig()

	log.Debug("Config loaded",
		"port", cfg.Port,
		"db_driver", cfg.DB.Driver,
		"sweep_interval", cfg.SweepInterval.Std().String(),
		"sweep_concurrency", cfg.SweepConcurrency,
		"redis", cfg.Redis.Enabled(),
		"kafka", cfg.Kafka.Enabled(),
		"temporal", cfg.Temporal.Enabled(),
		"openai", cfg.OpenAI.APIKey != "",
	)
	return cfg, nil
}

// DBServiceConfig resolves credentials that are env-only.
func (c Config) DBServiceConfig() db.Config {
	return db.Config{
		Driver:       c.DB.Driver,
		DSN:          envutil.String("DATABASE_URL", ""),
		Host:         c.DB.Host,
		Port:         c.DB.Port,
		User:         envutil.String("POSTGRES_USER", "postgres"),
		Password:     envutil.String("POSTGRES_PASSWORD", ""),
		Name:         c.DB.Name,
		SQLitePath:   c.DB.SQLitePath,
		MaxOpenConns: c.DB.MaxOpenConns,
		SlowQuery:    c.DB.SlowQuery.Std(),
	}
}
