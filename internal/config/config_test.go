package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Store defaults
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, DefaultNamespace, cfg.Store.Namespace)
	assert.Equal(t, DefaultPostgresMinConns, cfg.Store.Postgres.MinConns)
	assert.Equal(t, DefaultPostgresMaxConns, cfg.Store.Postgres.MaxConns)
	assert.Equal(t, DefaultQdrantPort, cfg.Store.Qdrant.Port)
	assert.Equal(t, DefaultQdrantDistance, cfg.Store.Qdrant.Distance)
	assert.Equal(t, DefaultOverFetch, cfg.Store.SQLite.OverFetch)
	assert.Contains(t, cfg.Store.SQLite.Path, DefaultDBFileName)

	// Embeddings defaults
	assert.Equal(t, DefaultEmbeddingProvider, cfg.Embeddings.Provider)
	assert.Equal(t, DefaultOllamaURL, cfg.Embeddings.Ollama.URL)
	assert.Equal(t, DefaultOllamaEmbedModel, cfg.Embeddings.Ollama.Model)
	assert.Equal(t, DefaultOpenAIEmbedModel, cfg.Embeddings.OpenAI.Model)

	// Ingest defaults
	assert.Equal(t, DefaultMaxFileSize, cfg.Ingest.MaxFileSize)
	assert.Equal(t, DefaultChunkSize, cfg.Ingest.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Ingest.ChunkOverlap)

	assert.Contains(t, cfg.Ignore, "node_modules/")
	assert.Contains(t, cfg.Ignore, ".git/")
	assert.NoError(t, cfg.Validate())
}

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, DefaultConfigDir(), "vectorkit")
	assert.Contains(t, DefaultDataDir(), "vectorkit")
	assert.Contains(t, DefaultDatabasePath(), "vectors.db")
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  backend: postgres
  namespace: team-a
  postgres:
    dsn: postgres://user:pass@db:5432/vectors
    table: rag.chunks
    dimensions: 1536
    max_conns: 4
    create_schema: true
  qdrant:
    host: qdrant.internal
    vector_size: 1536
    distance: dot
    keepalive: 1m
  sqlite:
    overfetch: 5
embeddings:
  provider: openai
  openai:
    model: text-embedding-3-large
    base_url: https://custom-api.example.com
ingest:
  chunk_size: 1000
ignore:
  - "custom-ignore/"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	err = Load(configPath)
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, "postgres", loadedCfg.Store.Backend)
	assert.Equal(t, "team-a", loadedCfg.Store.Namespace)
	assert.Equal(t, "postgres://user:pass@db:5432/vectors", loadedCfg.Store.Postgres.DSN)
	assert.Equal(t, "rag.chunks", loadedCfg.Store.Postgres.Table)
	assert.Equal(t, 1536, loadedCfg.Store.Postgres.Dimensions)
	assert.Equal(t, DefaultPostgresMinConns, loadedCfg.Store.Postgres.MinConns)
	assert.Equal(t, 4, loadedCfg.Store.Postgres.MaxConns)
	assert.True(t, loadedCfg.Store.Postgres.CreateSchema)
	assert.Equal(t, "qdrant.internal", loadedCfg.Store.Qdrant.Host)
	assert.Equal(t, DefaultQdrantPort, loadedCfg.Store.Qdrant.Port)
	assert.Equal(t, "dot", loadedCfg.Store.Qdrant.Distance)
	assert.Equal(t, time.Minute, loadedCfg.Store.Qdrant.Keepalive)
	assert.Equal(t, 5, loadedCfg.Store.SQLite.OverFetch)
	assert.Equal(t, "openai", loadedCfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-3-large", loadedCfg.Embeddings.OpenAI.Model)
	assert.Equal(t, "https://custom-api.example.com", loadedCfg.Embeddings.OpenAI.BaseURL)
	assert.Equal(t, 1000, loadedCfg.Ingest.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, loadedCfg.Ingest.ChunkOverlap)
	assert.Contains(t, loadedCfg.Ignore, "custom-ignore/")
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("VECTORKIT_STORE_BACKEND", "qdrant")
	t.Setenv("VECTORKIT_STORE_QDRANT_PORT", "7334")
	t.Setenv("VECTORKIT_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("QDRANT_API_KEY", "test-qdrant-key")

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, "qdrant", loadedCfg.Store.Backend)
	assert.Equal(t, 7334, loadedCfg.Store.Qdrant.Port)
	assert.Equal(t, "openai", loadedCfg.Embeddings.Provider)
	assert.Equal(t, "test-api-key", loadedCfg.Embeddings.OpenAI.APIKey)
	assert.Equal(t, "test-qdrant-key", loadedCfg.Store.Qdrant.APIKey)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("VECTORKIT_STORE_BACKEND", "pinecone")

	err := Load("")
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestLoadMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	// Missing config file is not an error
	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()
	assert.Equal(t, DefaultBackend, loadedCfg.Store.Backend)
	assert.Equal(t, DefaultEmbeddingProvider, loadedCfg.Embeddings.Provider)
}

func TestValidateChunkOverlap(t *testing.T) {
	c := DefaultConfig()
	c.Ingest.ChunkOverlap = c.Ingest.ChunkSize
	assert.Error(t, c.Validate())
}

func TestGet(t *testing.T) {
	cfg = nil

	c1 := Get()
	assert.NotNil(t, c1)

	// Subsequent call should return same instance
	c2 := Get()
	assert.Same(t, c1, c2)
}

func TestGlobalConfigPath(t *testing.T) {
	path := GlobalConfigPath()
	assert.Contains(t, path, "vectorkit")
	assert.Contains(t, path, "config.yaml")
}
