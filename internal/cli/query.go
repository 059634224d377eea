package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/search"
	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/ui"
)

var (
	queryVector   string
	queryText     string
	queryTopK     int
	queryFilters  []string
	queryJSON     bool
	queryMinScore float64
	queryContext  int
	queryRoot     string
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find the nearest vectors in a namespace",
	Long: `Return the top-k most similar items, highest score first.

Pass either a literal vector or text to embed with the configured
embedding provider. Filters are exact key=value matches on metadata and
are combined with AND.

Examples:
  vectorkit query --vector '[1, 0, 0]' -k 3
  vectorkit query --text "connection pooling" --filter path=docs/db.md
  vectorkit query --text "retries" --filter page=2 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryVector, "vector", "", "query vector as a JSON array")
	queryCmd.Flags().StringVarP(&queryText, "text", "t", "", "text to embed and search for")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 10, "maximum number of results")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata filter key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0.0, "minimum similarity score")
	queryCmd.Flags().IntVar(&queryContext, "context", 0, "lines of file context to show around ingested chunks")
	queryCmd.Flags().StringVar(&queryRoot, "root", ".", "directory ingested chunk paths are relative to")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if (queryVector == "") == (queryText == "") {
		return errors.New("exactly one of --vector or --text is required")
	}
	filters, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := search.Options{
		Namespace: namespace(),
		TopK:      queryTopK,
		MinScore:  queryMinScore,
		Filters:   filters,
	}
	log.Debug("Querying", "namespace", opts.Namespace, "top_k", opts.TopK, "filters", filters)

	var results []store.QueryResult
	if queryVector != "" {
		results, err = queryByVector(cmd, st, opts)
	} else {
		results, err = queryByText(cmd, st, opts)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		if results == nil {
			results = []store.QueryResult{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, ui.Dim.Render("No results found"))
		return nil
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(out, ui.HorizontalRule(40))
		}
		fmt.Fprintln(out, ui.FormatResult(i+1, r.ID, r.Score))
		fmt.Fprint(out, ui.FormatMetadata(r.Metadata))
		if queryContext > 0 {
			before, after := search.Context(queryRoot, r, queryContext)
			if before != "" {
				fmt.Fprintln(out, ui.Dim.Render(before))
			}
			if after != "" {
				fmt.Fprintln(out, ui.Dim.Render(after))
			}
		}
	}
	return nil
}

func queryByVector(cmd *cobra.Command, st store.Store, opts search.Options) ([]store.QueryResult, error) {
	vec, err := parseVector(queryVector)
	if err != nil {
		return nil, err
	}
	results, err := st.Query(cmd.Context(), opts.Namespace, vec, opts.TopK, opts.Filters)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		if r.Score < opts.MinScore {
			return results[:i], nil
		}
	}
	return results, nil
}

func queryByText(cmd *cobra.Command, st store.Store, opts search.Options) ([]store.QueryResult, error) {
	emb, err := openEmbedder()
	if err != nil {
		return nil, err
	}
	return search.New(st, emb).Search(cmd.Context(), queryText, opts)
}
