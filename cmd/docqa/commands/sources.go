package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewSourcesCmd constructs the `docqa sources` command, which lists the
// catalog. It only opens the catalog and never connects to the vector index.
func NewSourcesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources [source-id]",
		Short: "List ingested sources",
		Long: `List the sources recorded in the catalog, newest first. With a source id,
print that source including its summary.

Examples:
  docqa sources
  docqa sources --json
  docqa sources handbook`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			catalog, err := openCatalog(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("sources: %w", err)
			}
			defer func() { _ = catalog.Close() }()

			var list []store.Source
			if len(args) == 1 {
				src, err := catalog.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("sources: %s: %w", args[0], err)
				}
				list = []store.Source{src}
			} else if list, err = catalog.List(ctx); err != nil {
				return fmt.Errorf("sources: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if list == nil {
					list = []store.Source{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printSources(out, list, len(args) == 1, time.Now())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the sources as JSON")

	return cmd
}

// printSources writes list as an aligned table. now anchors the relative
// ingest times.
func printSources(w io.Writer, list []store.Source, withSummary bool, now time.Time) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no sources ingested")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTITLE\tSIZE\tCHUNKS\tINGESTED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Kind, s.Title,
			humanize.Bytes(uint64(max(s.ByteLength, 0))), //nolint:gosec // clamped non-negative
			s.ChunkCount,
			humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if withSummary && list[0].Summary != "" {
		_, err := fmt.Fprintf(w, "\n%s\n", list[0].Summary)
		return err
	}
	return nil
}
