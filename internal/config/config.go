// Package config handles configuration loading and validation for vectorkit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete vectorkit configuration.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Ignore     []string         `mapstructure:"ignore"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend   string         `mapstructure:"backend"`
	Namespace string         `mapstructure:"namespace"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Qdrant    QdrantConfig   `mapstructure:"qdrant"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig configures the pgvector backend.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	Dimensions   int    `mapstructure:"dimensions"`
	MinConns     int    `mapstructure:"min_conns"`
	MaxConns     int    `mapstructure:"max_conns"`
	CreateSchema bool   `mapstructure:"create_schema"`
}

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	APIKey     string        `mapstructure:"api_key"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Collection string        `mapstructure:"collection"`
	VectorSize int           `mapstructure:"vector_size"`
	Distance   string        `mapstructure:"distance"`
	OnDisk     bool          `mapstructure:"on_disk"`
	Keepalive  time.Duration `mapstructure:"keepalive"`
}

// SQLiteConfig configures the embedded sqlite-vec backend.
type SQLiteConfig struct {
	Path       string `mapstructure:"path"`
	Dimensions int    `mapstructure:"dimensions"`
	OverFetch  int    `mapstructure:"overfetch"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IngestConfig configures how files are chunked for ingestion.
type IngestConfig struct {
	MaxFileSize  int `mapstructure:"max_file_size"`
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   DefaultBackend,
			Namespace: DefaultNamespace,
			Postgres: PostgresConfig{
				Table:    DefaultPostgresTable,
				MinConns: DefaultPostgresMinConns,
				MaxConns: DefaultPostgresMaxConns,
			},
			Qdrant: QdrantConfig{
				Host:       DefaultQdrantHost,
				Port:       DefaultQdrantPort,
				Collection: DefaultQdrantCollection,
				Distance:   DefaultQdrantDistance,
				Keepalive:  DefaultQdrantKeepalive,
			},
			SQLite: SQLiteConfig{
				Path:       DefaultDatabasePath(),
				Dimensions: DefaultDimensions,
				OverFetch:  DefaultOverFetch,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Ingest: IngestConfig{
			MaxFileSize:  DefaultMaxFileSize,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from a .env file, the config file and
// environment variables, in increasing order of precedence.
func Load(configFile string) error {
	// .env is optional
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env")
	}

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	viper.SetEnvPrefix("VECTORKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	cfg = loaded

	loadAPIKeysFromEnv()

	return cfg.Validate()
}

// Validate checks values that would otherwise fail late inside a backend.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendQdrant:
	default:
		return fmt.Errorf("unknown store backend %q (use sqlite, postgres or qdrant)", c.Store.Backend)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Store
	viper.SetDefault("store.backend", DefaultBackend)
	viper.SetDefault("store.namespace", DefaultNamespace)
	viper.SetDefault("store.postgres.dsn", "")
	viper.SetDefault("store.postgres.table", DefaultPostgresTable)
	viper.SetDefault("store.postgres.dimensions", DefaultDimensions)
	viper.SetDefault("store.postgres.min_conns", DefaultPostgresMinConns)
	viper.SetDefault("store.postgres.max_conns", DefaultPostgresMaxConns)
	viper.SetDefault("store.postgres.create_schema", false)
	viper.SetDefault("store.qdrant.host", DefaultQdrantHost)
	viper.SetDefault("store.qdrant.port", DefaultQdrantPort)
	viper.SetDefault("store.qdrant.api_key", "")
	viper.SetDefault("store.qdrant.use_tls", false)
	viper.SetDefault("store.qdrant.collection", DefaultQdrantCollection)
	viper.SetDefault("store.qdrant.vector_size", DefaultDimensions)
	viper.SetDefault("store.qdrant.distance", DefaultQdrantDistance)
	viper.SetDefault("store.qdrant.on_disk", false)
	viper.SetDefault("store.qdrant.keepalive", DefaultQdrantKeepalive)
	viper.SetDefault("store.sqlite.path", DefaultDatabasePath())
	viper.SetDefault("store.sqlite.dimensions", DefaultDimensions)
	viper.SetDefault("store.sqlite.overfetch", DefaultOverFetch)

	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)
	viper.SetDefault("embeddings.openai.base_url", "")
	viper.SetDefault("embeddings.openai.api_key", "")
	viper.SetDefault("embeddings.openai.dimensions", 0)

	// Ingest
	viper.SetDefault("ingest.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("ingest.chunk_size", DefaultChunkSize)
	viper.SetDefault("ingest.chunk_overlap", DefaultChunkOverlap)

	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// findRCFile searches for .vectorkitrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".vectorkitrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv fills provider keys from their conventional variables.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.Store.Qdrant.APIKey == "" {
		if key := os.Getenv("QDRANT_API_KEY"); key != "" {
			cfg.Store.Qdrant.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
