// Package config loads server settings.
//
// LOAD ORDER (later wins):
//
//	defaults → YAML file (optional) → environment (RESERVE_*)
//
// A .env file in the working directory is loaded into the process
// environment first, so it can feed both ${VAR} placeholders in the YAML
// and the RESERVE_* overrides. Variables already set are never replaced.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sakif/reservations/internal/idgen"
)

// EnvPrefix prefixes every environment override, e.g. RESERVE_HTTP_PORT.
const EnvPrefix = "RESERVE"

const minSecretLength = 16

type Config struct {
	HTTP       HTTPConfig       `yaml:"http" envconfig:"HTTP"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DB"`
	Session    SessionConfig    `yaml:"session" envconfig:"SESSION"`
	Redis      RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	IDs        IDConfig         `yaml:"ids" envconfig:"IDS"`
	Seed       SeedConfig       `yaml:"seed" envconfig:"SEED"`
	Initialize InitializeConfig `yaml:"initialize" envconfig:"INITIALIZE"`
	Metrics    MetricsConfig    `yaml:"metrics" envconfig:"METRICS"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Log        LogConfig        `yaml:"log" envconfig:"LOG"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	StaticDir       string        `yaml:"static_dir" envconfig:"STATIC_DIR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"` // sqlite | mysql
	// Path is the SQLite file. Ignored when DSN is set.
	Path         string        `yaml:"path" envconfig:"PATH"`
	DSN          string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT"`
}

type SessionConfig struct {
	Backend    string        `yaml:"backend" envconfig:"BACKEND"` // cookie | redis
	Secret     string        `yaml:"secret" envconfig:"SECRET"`
	TTL        time.Duration `yaml:"ttl" envconfig:"TTL"`
	CookieName string        `yaml:"cookie_name" envconfig:"COOKIE_NAME"`
	Secure     bool          `yaml:"secure" envconfig:"SECURE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

type IDConfig struct {
	Source      string `yaml:"source" envconfig:"SOURCE"` // uuidv7 | xid
	MaxAttempts int    `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
}

type SeedConfig struct {
	Email    string `yaml:"email" envconfig:"EMAIL"`
	Nickname string `yaml:"nickname" envconfig:"NICKNAME"`
}

// InitializeConfig gates POST /initialize, which wipes every table.
type InitializeConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// RateLimitConfig limits signup and login per client IP. PerMinute 0
// disables the limiter.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" envconfig:"PER_MINUTE"`
	Burst     int `yaml:"burst" envconfig:"BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug|info|warn|error
	Format string `yaml:"format" envconfig:"FORMAT"` // text|json
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			StaticDir:       "public",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Path:         "data/reservations.db",
			MaxOpenConns: 10,
			BusyTimeout:  5 * time.Second,
		},
		Session: SessionConfig{
			Backend:    "cookie",
			TTL:        time.Hour,
			CookieName: "session_reservations",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		IDs: IDConfig{
			Source:      "uuidv7",
			MaxAttempts: idgen.DefaultMaxAttempts,
		},
		Seed: SeedConfig{
			Email:    "isucon2021_prior@isucon.net",
			Nickname: "isucon",
		},
		RateLimit: RateLimitConfig{PerMinute: 60, Burst: 10},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Support ${ENV_VAR} placeholders in YAML config.
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http.port %d out of range", c.HTTP.Port)
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" && c.Database.DSN == "" {
			return errors.New("config: database.path or database.dsn is required for sqlite")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 1 {
		return errors.New("config: database.max_open_conns must be at least 1")
	}

	switch c.Session.Backend {
	case "cookie":
		if len(c.Session.Secret) < minSecretLength {
			return fmt.Errorf("config: session.secret must be at least %d characters (set %s_SESSION_SECRET)",
				minSecretLength, EnvPrefix)
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis session backend")
		}
	default:
		return fmt.Errorf("config: unknown session.backend %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}

	if _, err := idgen.SourceByName(c.IDs.Source); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.IDs.MaxAttempts < 1 {
		return errors.New("config: ids.max_attempts must be at least 1")
	}

	if c.Seed.Email == "" {
		return errors.New("config: seed.email is required")
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit values must not be negative")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
