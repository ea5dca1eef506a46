package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Quiz     QuizConfig     `yaml:"quiz"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"TRIVIA_SERVER_PORT"`
}

type TelegramConfig struct {
	Token       string `yaml:"token" env:"TRIVIA_TELEGRAM_TOKEN"`
	AdminID     int64  `yaml:"admin_id" env:"TRIVIA_TELEGRAM_ADMIN_ID"`
	PollTimeout string `yaml:"poll_timeout" env:"TRIVIA_TELEGRAM_POLL_TIMEOUT"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver     string `yaml:"driver" env:"TRIVIA_STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"TRIVIA_SQLITE_PATH"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"TRIVIA_POSTGRES_URL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"TRIVIA_REDIS_ADDR"`
	Password string `yaml:"password" env:"TRIVIA_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"TRIVIA_REDIS_DB"`
	TTL      string `yaml:"ttl" env:"TRIVIA_REDIS_TTL"`
	// Scores moves the score ledger and leaderboard into Redis.
	Scores bool `yaml:"scores" env:"TRIVIA_REDIS_SCORES"`
}

type AMQPConfig struct {
	URL   string `yaml:"url" env:"TRIVIA_AMQP_URL"`
	Queue string `yaml:"queue" env:"TRIVIA_AMQP_QUEUE"`
}

type QuizConfig struct {
	FormatReveal string `yaml:"format_reveal" env:"TRIVIA_QUIZ_FORMAT_REVEAL"`
	AutoHint     string `yaml:"auto_hint" env:"TRIVIA_QUIZ_AUTO_HINT"`
	Timeout      string `yaml:"timeout" env:"TRIVIA_QUIZ_TIMEOUT"`
	HintTimeout  string `yaml:"hint_timeout" env:"TRIVIA_QUIZ_HINT_TIMEOUT"`
	CacheTTL     string `yaml:"cache_ttl" env:"TRIVIA_QUIZ_CACHE_TTL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"TRIVIA_LOG_LEVEL"`
	Format string `yaml:"format" env:"TRIVIA_LOG_FORMAT"`
}

// Load reads YAML config from path and applies TRIVIA_* environment overrides.
// A missing file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
		if c.Postgres.URL != "" {
			c.Storage.Driver = DriverPostgres
		}
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "quiz.db"
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "trivia.notifications"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage driver %q needs postgres.url", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
