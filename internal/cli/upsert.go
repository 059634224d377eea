package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/ui"
)

const maxLineSize = 64 << 20

var (
	upsertFile      string
	upsertBatchSize int
)

// upsertCmd represents the upsert command
var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Insert or replace vectors from JSON lines",
	Long: `Read one item per line and upsert them into the namespace.
Each line is an object with "id", "vector" and optional "metadata":

  {"id": "a", "vector": [0.1, 0.2, 0.3], "metadata": {"type": "doc"}}

Examples:
  # From a file
  vectorkit upsert --file items.jsonl -n docs

  # From stdin
  cat items.jsonl | vectorkit upsert`,
	Args: cobra.NoArgs,
	RunE: runUpsert,
}

func init() {
	upsertCmd.Flags().StringVarP(&upsertFile, "file", "f", "", "JSON-lines file to read (default stdin)")
	upsertCmd.Flags().IntVar(&upsertBatchSize, "batch-size", 256, "items per upsert call")
}

func runUpsert(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if upsertFile != "" {
		f, err := os.Open(upsertFile)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	items, err := readItems(in)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Warning.Render("No items to upsert"))
		return nil
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ns := namespace()
	batch := upsertBatchSize
	if batch <= 0 {
		batch = len(items)
	}
	for i := 0; i < len(items); i += batch {
		chunk := items[i:min(i+batch, len(items))]
		if err := st.Upsert(ctx, ns, chunk); err != nil {
			return fmt.Errorf("upsert failed after %d items: %w", i, err)
		}
		log.Debug("Upserted batch", "namespace", ns, "from", i, "count", len(chunk))
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(fmt.Sprintf("Upserted %d items into %s", len(items), ns)))
	return nil
}

// readItems decodes JSON lines, skipping blank ones.
func readItems(r io.Reader) ([]store.VectorItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var items []store.VectorItem
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var item store.VectorItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("line %d: invalid item: %w", line, err)
		}
		if item.ID == "" {
			return nil, fmt.Errorf("line %d: item has no id", line)
		}
		if len(item.Vector) == 0 {
			return nil, fmt.Errorf("line %d: item %q has no vector", line, item.ID)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return items, nil
}
