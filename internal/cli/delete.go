package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/ui"
)

var (
	deleteIDs     []string
	deleteFilters []string
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete vectors by id and/or metadata filter",
	Long: `Remove items from the namespace. With both --id and --filter only
items matching both are removed. At least one of them is required.

Examples:
  vectorkit delete --id a --id b
  vectorkit delete --filter path=docs/old.md -n docs`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringArrayVar(&deleteIDs, "id", nil, "item id to delete (repeatable)")
	deleteCmd.Flags().StringArrayVar(&deleteFilters, "filter", nil, "metadata filter key=value (repeatable)")
}

func runDelete(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(deleteFilters)
	if err != nil {
		return err
	}
	if err := store.ValidateDelete(deleteIDs, filters); err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ns := namespace()
	n, err := st.Delete(ctx, ns, deleteIDs, filters)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render(fmt.Sprintf("Deleted %d items from %s", n, ns)))
	return nil
}
