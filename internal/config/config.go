// Package config provides unified configuration loading for IGIA.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bens368/IGIA/internal/recipes"
	"github.com/Bens368/IGIA/internal/selector"
)

// Config holds all configuration for IGIA.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Selector      SelectorConfig      `yaml:"selector"`
	Raster        RasterConfig        `yaml:"raster"`
	Aggregate     AggregateConfig     `yaml:"aggregate"`
	Recipes       RecipesConfig       `yaml:"recipes"`
	Survey        SurveyConfig        `yaml:"survey"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig holds chat-completions endpoint settings.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	VisionModel string        `yaml:"vision_model"`
	TextModel   string        `yaml:"text_model"`
	ChatModel   string        `yaml:"chat_model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

// SelectorConfig holds the filename rules for flyer selection.
type SelectorConfig struct {
	RequiredMarker  string `yaml:"required_marker"`
	Extension       string `yaml:"extension"`
	PrimaryMarker   string `yaml:"primary_marker"`
	SecondaryMarker string `yaml:"secondary_marker"`
}

// RasterConfig holds first-page rendering settings.
type RasterConfig struct {
	OutputDir   string  `yaml:"output_dir"`
	JPEGQuality int     `yaml:"jpeg_quality"`
	DPI         float64 `yaml:"dpi"` // 0 renders at the engine default
}

// Rules converts the selector settings.
func (c SelectorConfig) Rules() selector.Rules {
	return selector.Rules{
		RequiredMarker:  c.RequiredMarker,
		Extension:       c.Extension,
		PrimaryMarker:   c.PrimaryMarker,
		SecondaryMarker: c.SecondaryMarker,
	}
}

// AggregateConfig holds where the aggregate table is persisted.
type AggregateConfig struct {
	Path string `yaml:"path"`
}

// RecipesConfig holds the reference spreadsheet layout.
type RecipesConfig struct {
	Path              string `yaml:"path"`
	Sheet             string `yaml:"sheet"`
	NameColumn        string `yaml:"name_column"`
	ProteinColumn     string `yaml:"protein_column"`
	IngredientsColumn string `yaml:"ingredients_column"`
	WeekColumn        string `yaml:"week_column"`
	EvaluateAll       bool   `yaml:"evaluate_all"`
}

// SheetSpec converts the workbook layout settings.
func (c RecipesConfig) SheetSpec() recipes.SheetSpec {
	return recipes.SheetSpec{
		Sheet:             c.Sheet,
		NameColumn:        c.NameColumn,
		ProteinColumn:     c.ProteinColumn,
		IngredientsColumn: c.IngredientsColumn,
		WeekColumn:        c.WeekColumn,
	}
}

// SurveyConfig holds the data-maturity chat settings.
type SurveyConfig struct {
	InstructionsPath string `yaml:"instructions_path"`
}

// CacheConfig holds extraction cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StorageConfig holds run history database settings.
type StorageConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			VisionModel: "gpt-4o",
			TextModel:   "gpt-4o",
			ChatModel:   "gpt-3.5-turbo",
			MaxTokens:   1000,
			Timeout:     2 * time.Minute,
			MaxRetries:  0,
			Title:       "IGIA",
		},
		Selector: SelectorConfig{
			RequiredMarker:  "IGA",
			Extension:       ".pdf",
			PrimaryMarker:   "raddar",
			SecondaryMarker: "W",
		},
		Raster: RasterConfig{
			OutputDir:   "output/images",
			JPEGQuality: 85,
		},
		Aggregate: AggregateConfig{
			Path: "output/ingredients.csv",
		},
		Recipes: RecipesConfig{
			Path:              "recipes.xlsx",
			Sheet:             "Recettes",
			NameColumn:        "Recette",
			ProteinColumn:     "Protéine",
			IngredientsColumn: "Ingrédients",
			WeekColumn:        "Semaine",
		},
		Survey: SurveyConfig{
			InstructionsPath: "instructions.txt",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Storage: StorageConfig{
			Enabled: true,
			Driver:  "sqlite",
			SQLite: SQLiteConfig{
				Path: "output/igia.db",
			},
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     10 * time.Minute,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   64 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return fmt.Errorf("llm base_url is required")
	}

	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries cannot be negative")
	}

	if c.Raster.JPEGQuality < 1 || c.Raster.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Raster.JPEGQuality)
	}

	if c.Selector.Extension == "" || !strings.HasPrefix(c.Selector.Extension, ".") {
		return fmt.Errorf("selector extension must start with a dot: %q", c.Selector.Extension)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Storage.Driver == "sqlite" {
		return c.Storage.SQLite.Path
	}
	return c.Storage.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("LLM_VISION_MODEL"); v != "" {
		cfg.LLM.VisionModel = v
	}

	if v := os.Getenv("LLM_TEXT_MODEL"); v != "" {
		cfg.LLM.TextModel = v
	}

	if v := os.Getenv("LLM_CHAT_MODEL"); v != "" {
		cfg.LLM.ChatModel = v
	}

	if v := os.Getenv("IGIA_OUTPUT_DIR"); v != "" {
		cfg.Raster.OutputDir = strings.TrimRight(v, "/") + "/images"
		cfg.Aggregate.Path = strings.TrimRight(v, "/") + "/ingredients.csv"
	}

	if v := os.Getenv("RECIPES_PATH"); v != "" {
		cfg.Recipes.Path = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Storage.Driver = "sqlite"
			cfg.Storage.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Storage.Driver = "postgres"
			cfg.Storage.Postgres.DSN = v
		}
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
