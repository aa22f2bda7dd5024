package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP server.

The server exposes chat, ingestion and catalog endpoints under /api, health
and readiness probes, and Prometheus metrics on /metrics. Set DOCQA_API_KEY
to require a Bearer token on every /api route except the probes.

Examples:
  docqa serve
  docqa serve --port 9090
  VECTOR_STORE=memory MODEL_PROVIDER=ollama docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Env defaults are resolved here, after --env-file and the YAML
			// config have been applied.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCQA_PORT", port)
			}

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in; without keys this is a no-op.
			flush, traced := tracing.Install(tracing.ConfigFromEnv())
			defer flush()
			if traced {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
			}

			a, err := newApp(ctx, log, appOptions{chat: true, registry: prometheus.DefaultRegisterer})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = a.Close() }()
			log.Info("vector store ready", slog.String("backend", a.indexName))

			srv, err := server.New(a.assistant, a.pipeline, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: a.pingers(),
				APIKey:  os.Getenv("DOCQA_API_KEY"),
				Fetcher: ingestion.NewExtractor(ingestion.ExtractorConfig{}),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: DOCQA_PORT)")

	return cmd
}
