package config

import (
	"fmt"
	"path/filepath"
	"time"

	"sql-chat/internal/llm"
	"sql-chat/internal/sqldb"

	"github.com/caarlos0/env/v11"
)

// DatabaseConfig holds the default connection to the database users chat
// with. Connect requests may override any field.
type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"mysql"`
	User     string `env:"DB_USER"`
	Password string `env:"DB1_PASSWORD"`
	Host     string `env:"HOST"`
	Port     string `env:"PORT"`
	Database string `env:"DATABASE"`
}

func (c DatabaseConfig) Params() sqldb.ConnectionParams {
	return sqldb.ConnectionParams{
		Driver:   c.Driver,
		User:     c.User,
		Password: c.Password,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
	}
}

type LLMConfig struct {
	Provider    string  `env:"LLM_PROVIDER" envDefault:"groq"`
	Model       string  `env:"LLM_MODEL" envDefault:"mixtral-8x7b-32768"`
	APIKey      string  `env:"LLM_API_KEY"`
	BaseURL     string  `env:"LLM_BASE_URL"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0"`
}

func (c LLMConfig) Options() llm.Config {
	return llm.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
	}
}

type Config struct {
	Database DatabaseConfig
	LLM      LLMConfig

	AuthConfigPath   string        `env:"AUTH_CONFIG" envDefault:"./config.yaml"`
	AppDataDir       string        `env:"APP_DATA_DIR" envDefault:"./data"`
	AppDatabaseURL   string        `env:"APP_DATABASE_URL"`
	APIPort          int           `env:"API_PORT" envDefault:"8501"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	SQLGuard         bool          `env:"SQL_GUARD" envDefault:"true"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"64"`
	SchemaSampleRows int           `env:"SCHEMA_SAMPLE_ROWS" envDefault:"3"`
	LogFile          string        `env:"LOG_FILE"`
	TraceFile        string        `env:"TRACE_FILE"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.AppDatabaseURL == "" {
		cfg.AppDatabaseURL = filepath.Join(cfg.AppDataDir, "sql-chat.db")
	}
	if cfg.SessionCacheSize < 1 {
		return nil, fmt.Errorf("SESSION_CACHE_SIZE must be positive, got %d", cfg.SessionCacheSize)
	}
	return &cfg, nil
}
