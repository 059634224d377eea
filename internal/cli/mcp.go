package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/fs"
	"github.com/nickcecere/vectorkit/internal/indexer"
	"github.com/nickcecere/vectorkit/internal/mcp"
	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/watcher"
)

var mcpWatch string

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the store as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout (JSON-RPC 2.0,
one message per line) with three tools:

  vector_query   nearest neighbours of a vector or a text query
  vector_upsert  insert or replace items
  vector_delete  delete items by id and/or metadata filter

Text queries are available when an embedding provider is configured. With
--watch DIR the server also re-ingests files under DIR into the namespace
as they change. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMcp,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpWatch, "watch", "", "directory to re-ingest on change while serving")
}

func runMcp(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []mcp.Option{
		mcp.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
		mcp.WithVersion(version),
	}

	emb, err := openEmbedder()
	if err != nil {
		if mcpWatch != "" {
			return err
		}
		log.Warn("Text queries disabled", "error", err)
	} else {
		opts = append(opts, mcp.WithEmbedder(emb))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if mcpWatch != "" {
		w, err := newBackgroundWatcher(st, emb, mcpWatch)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Watcher error", "error", err)
			}
		}()
	}

	return mcp.NewServer(st, namespace(), opts...).Run(ctx)
}

func newBackgroundWatcher(st store.Store, emb embeddings.Embedder, dir string) (*watcher.Watcher, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	cfg := config.Get()
	opts := indexer.Options{
		Root:           absPath,
		Namespace:      namespace(),
		MaxFileSize:    int64(cfg.Ingest.MaxFileSize),
		IgnorePatterns: cfg.Ignore,
		Chunk: fs.ChunkOptions{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
		},
	}
	log.Info("Watching for changes", "path", absPath, "namespace", opts.Namespace)
	return watcher.New(indexer.New(st, emb), opts, watcher.WithEventCallback(func(event, relPath string) {
		log.Debug("Watcher event", "event", event, "path", relPath)
	}))
}
