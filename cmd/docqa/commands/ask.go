package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question from the ingested sources and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var (
		sources    []string
		topK       int
		maxContext int
		showChunks bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your ingested sources",
		Long: `Retrieve the chunks most similar to the question from the selected sources
and ask the chat model to answer using only that context.

When --source is omitted every source in the catalog is searched. A question
with no relevant context is answered with a fixed reply and no model call.

Examples:
  docqa ask "what does the handbook say about onboarding?"
  docqa ask --source handbook --source faq "how do I reset my password?"
  docqa ask --top-k 5 --max-context 6000 --show-chunks "summarise the release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if topK < 0 || maxContext < 0 {
				return fmt.Errorf("ask: --top-k and --max-context must not be negative")
			}

			flush, _ := tracing.Install(tracing.ConfigFromEnv())
			defer flush()

			a, err := newApp(ctx, log, appOptions{chat: true, persistent: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = a.Close() }()

			if len(sources) == 0 {
				all, err := a.pipeline.Sources(ctx)
				if err != nil {
					return fmt.Errorf("ask: list sources: %w", err)
				}
				for _, s := range all {
					sources = append(sources, s.ID)
				}
				if len(sources) == 0 {
					return errors.New("ask: the catalog is empty; run 'docqa ingest' first")
				}
			}

			reply, err := a.assistant.Ask(ctx, assistant.Question{
				Text:            strings.Join(args, " "),
				SourceIDs:       sources,
				TopK:            topK,
				MaxContextUnits: maxContext,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Response)
			if len(reply.Sources) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for _, c := range reply.Sources {
				fmt.Fprintf(out, "  %s #%d (score %.3f)\n", c.SourceID, c.ChunkIndex, c.Score)
				if showChunks {
					fmt.Fprintf(out, "    %s\n", c.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source id to search (repeatable, default: all sources)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks to retrieve (default: DOCQA_TOP_K or 3)")
	cmd.Flags().IntVar(&maxContext, "max-context", 0, "Context budget in characters (default: DOCQA_MAX_CONTEXT or 4000)")
	cmd.Flags().BoolVar(&showChunks, "show-chunks", false, "Print the text of each retrieved chunk")

	return cmd
}
