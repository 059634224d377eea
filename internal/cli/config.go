package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  vectorkit config

  # Show config file paths
  vectorkit config --path`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if configShowPath {
		fmt.Fprintln(out, ui.Header.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Global config: %s\n", config.GlobalConfigPath())
		fmt.Fprintf(out, "Local config:  .vectorkitrc.yaml (searched from cwd upward)\n")
		fmt.Fprintf(out, "Active config: %s\n", config.ConfigFilePath())
		fmt.Fprintf(out, "Database:      %s\n", cfg.Store.SQLite.Path)
		return nil
	}

	fmt.Fprintln(out, ui.Header.Render("Current Configuration"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Store:"))
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "  Namespace: %s\n", cfg.Store.Namespace)
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		fmt.Fprintf(out, "  DSN: %s\n", redact(cfg.Store.Postgres.DSN))
		fmt.Fprintf(out, "  Table: %s\n", cfg.Store.Postgres.Table)
		fmt.Fprintf(out, "  Dimensions: %d\n", cfg.Store.Postgres.Dimensions)
		fmt.Fprintf(out, "  Pool: %d-%d connections\n", cfg.Store.Postgres.MinConns, cfg.Store.Postgres.MaxConns)
	case config.BackendQdrant:
		fmt.Fprintf(out, "  Address: %s:%d (tls=%t)\n", cfg.Store.Qdrant.Host, cfg.Store.Qdrant.Port, cfg.Store.Qdrant.UseTLS)
		fmt.Fprintf(out, "  Collection: %s\n", cfg.Store.Qdrant.Collection)
		fmt.Fprintf(out, "  Vector Size: %d\n", cfg.Store.Qdrant.VectorSize)
		fmt.Fprintf(out, "  Distance: %s\n", cfg.Store.Qdrant.Distance)
	default:
		fmt.Fprintf(out, "  Path: %s\n", cfg.Store.SQLite.Path)
		fmt.Fprintf(out, "  Dimensions: %d\n", cfg.Store.SQLite.Dimensions)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Embeddings:"))
	fmt.Fprintf(out, "  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Fprintf(out, "  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Fprintf(out, "  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Fprintf(out, "  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Fprintf(out, "  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Ingest:"))
	fmt.Fprintf(out, "  Max File Size: %d bytes\n", cfg.Ingest.MaxFileSize)
	fmt.Fprintf(out, "  Chunk Size: %d\n", cfg.Ingest.ChunkSize)
	fmt.Fprintf(out, "  Chunk Overlap: %d\n", cfg.Ingest.ChunkOverlap)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Ignore Patterns:"))
	fmt.Fprintf(out, "  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

// redact hides the userinfo of a connection string.
func redact(dsn string) string {
	start := 0
	if i := strings.Index(dsn, "://"); i >= 0 {
		start = i + 3
	}
	at := strings.Index(dsn[start:], "@")
	if at < 0 {
		return dsn
	}
	return dsn[:start] + "****" + dsn[start+at:]
}
