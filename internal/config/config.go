// Package config loads layered application configuration with koanf.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bull/docqa/internal/storage"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: DOCQA_LLM__CHAT_MODEL sets llm.chat_model.
const EnvPrefix = "DOCQA_"

// Config holds all configuration for the application
type Config struct {
	LLM     LLMConfig     `koanf:"llm"`
	Store   StoreConfig   `koanf:"store"`
	Index   IndexConfig   `koanf:"index"`
	Summary SummaryConfig `koanf:"summary"`
	Metrics MetricsConfig `koanf:"metrics"`
	GitHub  GitHubConfig  `koanf:"github"`
	Server  ServerConfig  `koanf:"server"`
	App     AppConfig     `koanf:"app"`
}

// LLMConfig describes the OpenAI-compatible model server
type LLMConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	ChatModel      string `koanf:"chat_model"`
	EmbeddingModel string `koanf:"embedding_model"`
	EmbedBatchSize int    `koanf:"embed_batch_size"`
	Timeout        int    `koanf:"timeout"` // seconds
}

// StoreConfig selects and locates the vector store
type StoreConfig struct {
	Backend          string `koanf:"backend"` // "qdrant", "sqlite" or "memory"
	QdrantHost       string `koanf:"qdrant_host"`
	QdrantPort       int    `koanf:"qdrant_port"`
	SQLitePath       string `koanf:"sqlite_path"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

// IndexConfig controls chunking and retrieval for questions
type IndexConfig struct {
	ChunkSize int `koanf:"chunk_size"`
	Overlap   int `koanf:"overlap"`
	TopK      int `koanf:"top_k"`
}

// SummaryConfig controls section summarization
type SummaryConfig struct {
	ChunkSize   int    `koanf:"chunk_size"`
	Overlap     int    `koanf:"overlap"`
	Output      string `koanf:"output"`
	Concurrency int    `koanf:"concurrency"`
}

// MetricsConfig locates the Pushgateway
type MetricsConfig struct {
	Enabled        bool   `koanf:"enabled"`
	PushgatewayURL string `koanf:"pushgateway_url"`
}

// GitHubConfig holds credentials for github:// document sources
type GitHubConfig struct {
	Token string `koanf:"token"`
}

// ServerConfig holds MCP server settings
type ServerConfig struct {
	Mode string `koanf:"mode"` // "stdio" or "http"
	Port string `koanf:"port"`
}

// AppConfig holds logging settings
type AppConfig struct {
	LogLevel  string `koanf:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `koanf:"log_format"` // "text" or "json"
}

// legacyEnv maps the plain variable names used by local Ollama setups to
// configuration keys. They take precedence over everything else.
var legacyEnv = map[string]string{
	"OPENAI_API_KEY":  "llm.api_key",
	"OLLAMA_BASE_URL": "llm.base_url",
	"QDRANT_HOST":     "store.qdrant_host",
	"QDRANT_PORT":     "store.qdrant_port",
	"PUSHGATEWAY_URL": "metrics.pushgateway_url",
	"GITHUB_TOKEN":    "github.token",
	"PORT":            "server.port",
}

// Load loads configuration from multiple sources with precedence:
// 1. built-in defaults
// 2. config.yaml / config.json, or the file at path when given
// 3. DOCQA_ environment variables
// 4. legacy environment variables (highest precedence)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)

	if err := loadConfigFiles(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			_ = k.Set(key, v)
		}
	}
	// SERVER_MODE=true is the switch the stdio/HTTP server has always used
	if v := os.Getenv("SERVER_MODE"); v == "true" {
		_ = k.Set("server.mode", "http")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"llm.base_url":         "http://localhost:11434/v1",
		"llm.api_key":          "ollama",
		"llm.chat_model":       "deepseek-r1:1.5b",
		"llm.embedding_model":  "znbang/bge:small-en-v1.5-q8_0",
		"llm.embed_batch_size": 64,
		"llm.timeout":          120,

		"store.backend":           storage.BackendQdrant,
		"store.qdrant_host":       "localhost",
		"store.qdrant_port":       6334,
		"store.sqlite_path":       "vector_store.db",
		"store.collection_prefix": "local-rag",

		"index.chunk_size": 7500,
		"index.overlap":    100,
		"index.top_k":      4,

		"summary.chunk_size":  2000,
		"summary.overlap":     100,
		"summary.output":      "summaries.txt",
		"summary.concurrency": 1,

		"metrics.enabled":         true,
		"metrics.pushgateway_url": "http://localhost:9091",

		"server.mode": "stdio",
		"server.port": "8080",

		"app.log_level":  "info",
		"app.log_format": "text",
	}

	for key, value := range defaults {
		_ = k.Set(key, value) // Ignore error for setting defaults
	}
}

// loadConfigFiles loads an explicit file, or the optional config.yaml and
// config.json from the working directory.
func loadConfigFiles(k *koanf.Koanf, path string) error {
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return fmt.Errorf("error loading %s: %w", path, err)
		}
		return nil
	}

	for _, name := range []string{"config.yaml", "config.json"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		parser, _ := parserFor(name)
		if err := k.Load(file.Provider(name), parser); err != nil {
			slog.Warn("Failed to load config file", "path", name, "error", err)
		}
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser(), nil
	case strings.HasSuffix(path, ".json"):
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Index.Overlap < 0 || cfg.Index.ChunkSize <= cfg.Index.Overlap {
		return fmt.Errorf("index chunk size (%d) must be greater than overlap (%d) >= 0", cfg.Index.ChunkSize, cfg.Index.Overlap)
	}
	if cfg.Summary.Overlap < 0 || cfg.Summary.ChunkSize <= cfg.Summary.Overlap {
		return fmt.Errorf("summary chunk size (%d) must be greater than overlap (%d) >= 0", cfg.Summary.ChunkSize, cfg.Summary.Overlap)
	}
	if cfg.Index.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", cfg.Index.TopK)
	}

	switch cfg.Store.Backend {
	case storage.BackendQdrant, storage.BackendSQLite, storage.BackendMemory:
	default:
		return fmt.Errorf("unknown vector store backend %q", cfg.Store.Backend)
	}

	if _, err := ParseLevel(cfg.App.LogLevel); err != nil {
		return err
	}

	switch cfg.Server.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown server mode %q", cfg.Server.Mode)
	}

	return nil
}

// RequestTimeout returns the model server timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:    c.Store.Backend,
		QdrantHost: c.Store.QdrantHost,
		QdrantPort: c.Store.QdrantPort,
		SQLitePath: c.Store.SQLitePath,
	}
}
