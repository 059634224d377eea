package config

import (
	"os"
	"path/filepath"
	"time"
)

// Backend names accepted by store.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// Default configuration values
const (
	// Store defaults
	DefaultBackend          = BackendSQLite
	DefaultNamespace        = "__global__"
	DefaultDimensions       = 768 // nomic-embed-text
	DefaultPostgresTable    = "vector_items"
	DefaultPostgresMinConns = 1
	DefaultPostgresMaxConns = 10
	DefaultQdrantHost       = "localhost"
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "vectorkit"
	DefaultQdrantDistance   = "cosine"
	DefaultQdrantKeepalive  = 30 * time.Second
	DefaultOverFetch        = 3

	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Ingest defaults
	DefaultMaxFileSize  = 1 << 20 // 1MB
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// Database
	DefaultDBFileName = "vectors.db"
)

// DefaultIgnorePatterns returns the gitignore-style patterns skipped by
// ingest in addition to any .gitignore found in the tree.
func DefaultIgnorePatterns() []string {
	return []string{
		".git/", ".svn/", ".hg/",
		"node_modules/", "vendor/", ".venv/", "venv/", "__pycache__/",
		"dist/", "build/", "target/",
		".idea/", ".vscode/", ".DS_Store",
		"*.lock", "package-lock.json", "go.sum",
		"*.min.js", "*.min.css", "*.map",
		".env", ".env.*", "*.log",
		"*.db", "*.sqlite", "*.sqlite3",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/vectorkit"
	}
	return filepath.Join(home, ".config", "vectorkit")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/vectorkit"
	}
	return filepath.Join(home, ".local", "share", "vectorkit")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
