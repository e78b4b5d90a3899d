// Package config provides configuration management for Engram.
// Settings load in three layers: built-in defaults, an optional YAML
// config file, then environment variables with the ENGRAM_ prefix.
// Later layers override earlier ones.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Engine  EngineConfig  `yaml:"engine"`
	Watcher WatcherConfig `yaml:"watcher"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7171)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Connection string when engine is postgres
}

// LLMConfig contains collaborator provider configuration.
type LLMConfig struct {
	Provider       string `yaml:"provider"`        // Provider: ollama, openai, none (default: ollama)
	OllamaURL      string `yaml:"ollama_url"`      // Ollama API URL (default: http://localhost:11434)
	OllamaModel    string `yaml:"ollama_model"`    // Ollama model for text (default: qwen2.5:7b)
	EmbeddingModel string `yaml:"embedding_model"` // Embedding model name (default: nomic-embed-text)
	OpenAIAPIKey   string `yaml:"openai_api_key"`  // OpenAI API key
	OpenAIModel    string `yaml:"openai_model"`    // OpenAI model name (default: gpt-4o-mini)
	OpenAIBaseURL  string `yaml:"openai_base_url"` // Override for OpenAI-compatible endpoints

	// CallInterval paces collaborator calls (default: 500ms).
	CallInterval time.Duration `yaml:"call_interval"`
	// CallTimeout bounds a single collaborator call (default: 20s).
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// EngineConfig tunes the memory engine.
type EngineConfig struct {
	UnderstandTimeout   time.Duration `yaml:"understand_timeout"`   // Extraction call budget during ingest (default: 10s)
	QueueSize           int           `yaml:"queue_size"`           // Background ingest queue capacity (default: 128)
	Workers             int           `yaml:"workers"`              // Background ingest workers (default: 2)
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"` // Automatic maintenance period, 0 disables (default: 6h)
}

// WatcherConfig controls the inbox file watcher.
type WatcherConfig struct {
	Enabled      bool   `yaml:"enabled"`       // Watch {data_path}/inbox for note files (default: false)
	DefaultOwner string `yaml:"default_owner"` // Owner attributed to watched files (default: "default")
}

// LoadConfig loads configuration from defaults and environment variables.
func LoadConfig() (*Config, error) {
	return loadWithFile("")
}

// LoadConfigFromFile loads configuration with a YAML file layered between
// defaults and environment variables. A missing file is an error; pass ""
// to skip the file layer.
func LoadConfigFromFile(path string) (*Config, error) {
	return loadWithFile(path)
}

func loadWithFile(path string) (*Config, error) {
	// Load .env file if present (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7171,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			EmbeddingModel: "nomic-embed-text",
			OpenAIModel:    "gpt-4o-mini",
			CallInterval:   500 * time.Millisecond,
			CallTimeout:    20 * time.Second,
		},
		Engine: EngineConfig{
			UnderstandTimeout:   10 * time.Second,
			QueueSize:           128,
			Workers:             2,
			MaintenanceInterval: 6 * time.Hour,
		},
		Watcher: WatcherConfig{
			Enabled:      false,
			DefaultOwner: "default",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("ENGRAM_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("ENGRAM_HOST", cfg.Server.Host)

	cfg.Storage.Engine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("ENGRAM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("ENGRAM_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("ENGRAM_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("ENGRAM_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.EmbeddingModel = getEnv("ENGRAM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("ENGRAM_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("ENGRAM_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIBaseURL = getEnv("ENGRAM_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.CallInterval = getEnvDuration("ENGRAM_LLM_CALL_INTERVAL", cfg.LLM.CallInterval)
	cfg.LLM.CallTimeout = getEnvDuration("ENGRAM_LLM_CALL_TIMEOUT", cfg.LLM.CallTimeout)

	cfg.Engine.UnderstandTimeout = getEnvDuration("ENGRAM_UNDERSTAND_TIMEOUT", cfg.Engine.UnderstandTimeout)
	cfg.Engine.QueueSize = getEnvInt("ENGRAM_QUEUE_SIZE", cfg.Engine.QueueSize)
	cfg.Engine.Workers = getEnvInt("ENGRAM_WORKERS", cfg.Engine.Workers)
	cfg.Engine.MaintenanceInterval = getEnvDuration("ENGRAM_MAINTENANCE_INTERVAL", cfg.Engine.MaintenanceInterval)

	cfg.Watcher.Enabled = getEnvBool("ENGRAM_WATCH_INBOX", cfg.Watcher.Enabled)
	cfg.Watcher.DefaultOwner = getEnv("ENGRAM_DEFAULT_OWNER", cfg.Watcher.DefaultOwner)
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage requires ENGRAM_POSTGRES_DSN")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("500ms",
// "6h") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
