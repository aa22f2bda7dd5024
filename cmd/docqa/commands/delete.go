package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewDeleteCmd constructs the `docqa delete` command, which removes sources
// from the vector index and the catalog.
func NewDeleteCmd() *cobra.Command {
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:   "delete <source-id>...",
		Short: "Delete ingested sources and their vectors",
		Long: `Delete every vector of each source from the index, then remove the source
from the catalog.

Examples:
  docqa delete handbook
  docqa delete --ignore-missing dQw4w9WgXcQ faq`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := newApp(ctx, log, appOptions{persistent: true})
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			for _, id := range args {
				n, err := a.pipeline.Delete(ctx, id)
				if errors.Is(err, store.ErrNotFound) && ignoreMissing {
					log.Warn("delete: source not found", slog.String("source_id", id))
					continue
				}
				if err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(out, "%s\t%d vectors deleted\n", id, n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "Skip ids that are not in the catalog")

	return cmd
}
