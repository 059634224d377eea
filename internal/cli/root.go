// Package cli implements the command-line interface for vectorkit.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile       string
	debug         bool
	flagNamespace string
	flagBackend   string
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vectorkit",
	Short: "Namespaced vector storage over pgvector, Qdrant and sqlite-vec",
	Long: `vectorkit stores, queries and deletes embedding vectors in a
namespace of a pgvector table, a Qdrant collection or a local sqlite-vec
database, behind one interface.

Examples:
  # Load vectors from a JSON-lines file
  vectorkit upsert --file items.jsonl -n docs

  # Nearest neighbours of a vector, restricted by metadata
  vectorkit query --vector '[0.1, 0.2, 0.3]' -k 5 --filter type=doc

  # Embed a directory and search it by text
  vectorkit ingest ./notes -n notes
  vectorkit query --text "how are backups rotated" -n notes

  # Use Qdrant instead of the local database
  vectorkit query --backend qdrant --text "retry policy"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetDebug(debug)
		if debug {
			log.Debug("Debug logging enabled")
		}

		if err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg := config.Get()
		if flagBackend != "" {
			cfg.Store.Backend = flagBackend
		}
		if flagNamespace != "" {
			cfg.Store.Namespace = flagNamespace
		}
		return nil
	},
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/vectorkit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&flagNamespace, "namespace", "n", "", "namespace to operate on (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "store backend: sqlite, postgres or qdrant")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "vectorkit %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}
