package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/chunking"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewIngestCmd constructs the `docqa ingest` command, which extracts,
// chunks and embeds sources into the vector index and records them in the
// catalog.
func NewIngestCmd() *cobra.Command {
	var (
		text      string
		sourceID  string
		kind      string
		title     string
		chunkSize int
		overlap   int
		summarize bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [path|url]...",
		Short: "Ingest documents, web pages or transcripts",
		Long: `Extract text from local files or URLs, split it into overlapping chunks,
embed the chunks and store them in the vector index.

PDF, HTML and plain text are supported. Re-ingesting a source id replaces the
vectors of the earlier ingest. Metadata flags are optional; when omitted the
source id, kind and title are inferred from the path or URL (YouTube URLs
resolve to the video id).

Environment variables:
  VECTOR_STORE         qdrant (default) or memory
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa)
  EMBEDDING_PROVIDER   ollama, openai or azure (default: MODEL_PROVIDER)
  DOCQA_CHUNK_SIZE     Words per chunk (default: 512)
  DOCQA_CHUNK_OVERLAP  Words shared by consecutive chunks (default: 50)

Examples:
  docqa ingest ./handbook.pdf
  docqa ingest https://example.com/guide.html --title "Setup guide"
  docqa ingest --source-id dQw4w9WgXcQ --kind video --text - < transcript.txt
  docqa ingest --summarize --chunk-size 256 --overlap 32 notes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			switch {
			case text != "" && len(args) > 0:
				return fmt.Errorf("ingest: --text cannot be combined with paths or URLs")
			case text == "" && len(args) == 0:
				return fmt.Errorf("ingest: a path, URL or --text is required")
			case sourceID != "" && len(args) > 1:
				return fmt.Errorf("ingest: --source-id applies to a single source")
			case chunkSize < 0 || overlap < 0:
				return fmt.Errorf("ingest: --chunk-size and --overlap must not be negative")
			}

			a, err := newApp(ctx, log, appOptions{chat: summarize, persistent: true})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = a.Close() }()

			base := ingestion.Request{
				SourceID:  sourceID,
				Kind:      store.Kind(kind),
				Title:     title,
				Chunking:  chunking.Override(chunkSize, overlap),
				Summarize: summarize,
			}

			var requests []ingestion.Request
			if text != "" {
				if text == "-" {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("ingest: read stdin: %w", err)
					}
					text = string(data)
				}
				req := base
				req.Content = text
				if req.SourceID == "" {
					req.SourceID = uuid.NewString()
				}
				requests = append(requests, req)
			} else {
				extractor := ingestion.NewExtractor(ingestion.ExtractorConfig{AllowPrivateNetworks: true})
				for _, locator := range args {
					extracted, err := extractor.Extract(ctx, locator)
					if err != nil {
						return fmt.Errorf("ingest: %w", err)
					}
					requests = append(requests, withInferred(base, locator, extracted.Text))
				}
			}

			out := cmd.OutOrStdout()
			for _, req := range requests {
				res, err := a.pipeline.Ingest(ctx, req)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", req.SourceID, err)
				}
				log.Info("source ingested",
					slog.String("source_id", res.Source.ID),
					slog.Int("chunks", res.Source.ChunkCount),
					slog.Int("dropped", res.Dropped),
					slog.Int("replaced", res.Replaced),
				)
				fmt.Fprintf(out, "%s\t%d chunks\n", res.Source.ID, res.Source.ChunkCount)
				if res.Source.Summary != "" {
					fmt.Fprintf(out, "  %s\n", res.Source.Summary)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Ingest this text instead of a file or URL (\"-\" reads stdin)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Source id (default: inferred from the path or URL)")
	cmd.Flags().StringVar(&kind, "kind", "", "Source kind: document or video (default: inferred)")
	cmd.Flags().StringVar(&title, "title", "", "Human readable title (default: inferred)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Words per chunk (default: DOCQA_CHUNK_SIZE or 512)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "Words shared by consecutive chunks (default: DOCQA_CHUNK_OVERLAP or 50)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Store a model-generated summary with the source")

	return cmd
}

// withInferred fills the unset metadata of base from locator. Explicit flags
// always win over inferred values.
func withInferred(base ingestion.Request, locator, content string) ingestion.Request {
	req := base
	req.Content = content

	inferred := ingestion.InferSource(locator)
	if req.SourceID == "" {
		req.SourceID = inferred.SourceID
	}
	if req.Kind == "" {
		req.Kind = inferred.Kind
	}
	if req.Title == "" {
		req.Title = inferred.Title
	}
	if strings.TrimSpace(req.SourceID) == "" {
		req.SourceID = uuid.NewString()
	}
	return req
}
