package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the floorcast server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Catalog    CatalogConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type CatalogConfig struct {
	Path string
}

type StorageConfig struct {
	UploadDir      string
	OutputDir      string
	MaxUploadBytes int64
}

type GenerationConfig struct {
	Provider    string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	// Seed is nil when GENERATION_SEED is unset, letting the model pick.
	Seed   *int
	Gemini GeminiConfig
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type JobsConfig struct {
	PromptVersion     string
	WorkerConcurrency int
	QueueSize         int
	IdempotencyTTL    time.Duration
}

var validProviders = map[string]bool{
	"gemini":      true,
	"passthrough": true,
}

// LoadGeneration reads and validates only the generator settings. The CLI
// uses it to call the generator without a database or cache.
func LoadGeneration() (GenerationConfig, error) {
	g := loadGeneration()
	if err := g.validate(); err != nil {
		return GenerationConfig{}, err
	}
	return g, nil
}

func loadGeneration() GenerationConfig {
	return GenerationConfig{
		Provider:    os.Getenv("GENERATOR_PROVIDER"),
		Timeout:     envDurationSecs("GENERATION_TIMEOUT_SECS", 120*time.Second),
		Temperature: envFloat("GENERATION_TEMPERATURE", 0.1),
		TopP:        envFloat("GENERATION_TOP_P", 0.5),
		Seed:        envOptionalInt("GENERATION_SEED"),
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:   envString("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		},
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FLOORCAST_PORT", 8080),
			Env:  envString("FLOORCAST_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Catalog: CatalogConfig{
			Path: os.Getenv("CATALOG_PATH"),
		},
		Storage: StorageConfig{
			UploadDir:      envString("UPLOAD_DIR", "uploads"),
			OutputDir:      envString("OUTPUT_DIR", "outputs"),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 20<<20)),
		},
		Generation: loadGeneration(),
		Jobs: JobsConfig{
			PromptVersion:     envString("PROMPT_VERSION", "floor-v1"),
			WorkerConcurrency: envInt("WORKER_CONCURRENCY", 2),
			QueueSize:         envInt("QUEUE_SIZE", 100),
			IdempotencyTTL:    envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}

	if err := c.Generation.validate(); err != nil {
		return err
	}

	if c.Jobs.PromptVersion == "" {
		return fmt.Errorf("PROMPT_VERSION must not be empty")
	}
	if c.Jobs.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Jobs.WorkerConcurrency)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1, got %d", c.Jobs.QueueSize)
	}

	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Storage.MaxUploadBytes)
	}

	return nil
}

func (g GenerationConfig) validate() error {
	if g.Provider == "" {
		return fmt.Errorf("GENERATOR_PROVIDER is required")
	}
	if !validProviders[g.Provider] {
		return fmt.Errorf("GENERATOR_PROVIDER must be one of gemini, passthrough; got %q", g.Provider)
	}
	if g.Provider == "gemini" {
		if g.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when GENERATOR_PROVIDER is gemini")
		}
		u := g.Gemini.BaseURL
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", u)
		}
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("GENERATION_TEMPERATURE must be between 0 and 2, got %v", g.Temperature)
	}
	if g.TopP < 0 || g.TopP > 1 {
		return fmt.Errorf("GENERATION_TOP_P must be between 0 and 1, got %v", g.TopP)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envOptionalInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
