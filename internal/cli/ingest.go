package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/fs"
	"github.com/nickcecere/vectorkit/internal/indexer"
	"github.com/nickcecere/vectorkit/internal/ui"
	"github.com/nickcecere/vectorkit/internal/watcher"
)

var (
	ingestIgnore    []string
	ingestBatchSize int
	ingestWatch     bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Chunk, embed and upsert a directory of text files",
	Long: `Walk a directory (honoring .gitignore), split each text file into
overlapping line-based chunks, embed them and upsert them into the
namespace. Re-ingesting a file replaces all of its earlier chunks. With
--watch the command keeps running and re-ingests files as they change.

Each chunk is stored with metadata path, start_line, end_line,
chunk_index, file_hash and content, so it can be filtered by path:

  vectorkit ingest ./docs -n docs
  vectorkit query --text "rotation" -n docs --filter path=ops/backups.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestIgnore, "ignore", "i", nil, "additional patterns to ignore")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", indexer.DefaultBatchSize, "chunks per embedding request")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep running and re-ingest files as they change")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", absPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg := config.Get()
	ctx := cmd.Context()

	emb, err := openEmbedder()
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ns := namespace()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Header.Render("Ingesting "+filepath.Base(absPath)))
	fmt.Fprintf(out, "Namespace: %s\n", ns)
	fmt.Fprintf(out, "Backend:   %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "Provider:  %s (%s)\n", cfg.Embeddings.Provider, emb.Model())
	fmt.Fprintln(out)

	lastUpdate := time.Now()
	idx := indexer.New(st, emb)
	opts := indexer.Options{
		Root:           absPath,
		Namespace:      ns,
		MaxFileSize:    int64(cfg.Ingest.MaxFileSize),
		IgnorePatterns: append(append([]string{}, cfg.Ignore...), ingestIgnore...),
		Chunk: fs.ChunkOptions{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
		},
		BatchSize: ingestBatchSize,
		OnProgress: func(p indexer.Progress) {
			// Throttle updates to every 100ms
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()
			log.Info("Progress", "files", p.Files, "chunks", p.Chunks, "current", p.CurrentFile)
		},
	}
	res, err := idx.Index(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Ingest cancelled"))
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintln(out, ui.Success.Render("Ingest complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Files:    %d\n", res.Files)
	fmt.Fprintf(out, "  Chunks:   %d\n", res.Chunks)
	if res.Replaced > 0 {
		fmt.Fprintf(out, "  Replaced: %d\n", res.Replaced)
	}
	if res.Errors > 0 {
		fmt.Fprintf(out, "  Errors:   %s\n", ui.Warning.Render(fmt.Sprint(res.Errors)))
	}
	fmt.Fprintf(out, "  Time:     %s\n", res.Duration.Round(time.Millisecond))

	if !ingestWatch {
		return nil
	}
	w, err := watcher.New(idx, opts, watcher.WithEventCallback(func(event, relPath string) {
		fmt.Fprintf(out, "%s %s\n", ui.Dim.Render(event), relPath)
	}))
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Dim.Render("Watching for changes, press Ctrl+C to stop"))
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
