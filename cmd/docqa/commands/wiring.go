package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
)

// appOptions selects which parts of the stack a command needs.
type appOptions struct {
	// chat builds the chat model, the answer generator and the assistant.
	chat bool

	// registry receives the rag, ingestion and answer collectors. Nil
	// disables metrics.
	registry prometheus.Registerer

	// persistent warns when the vector index would not outlive the process.
	persistent bool
}

// app is the wired docqa stack shared by the commands.
type app struct {
	log *slog.Logger

	catalog   *store.SQLiteStore
	index     rag.VectorIndex
	gateway   *rag.Gateway
	pipeline  *ingestion.Pipeline
	generator *answer.Generator
	assistant *assistant.Assistant

	embedCfg    embedder.Config
	providerCfg *provider.Config
	indexName   string
}

// openCatalog opens the SQLite source catalog at DOCQA_DB, or at the default
// path under ~/.docqa.
func openCatalog(log *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := os.Getenv("DOCQA_DB")
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	catalog, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	log.Debug("catalog opened", slog.String("path", dbPath))
	return catalog, nil
}

// openIndex connects the vector index selected by VECTOR_STORE.
func openIndex(ctx context.Context, log *slog.Logger, dims int, persistent bool) (rag.VectorIndex, string, error) {
	backend := strings.ToLower(getEnvOrDefault("VECTOR_STORE", "qdrant"))
	switch backend {
	case "memory":
		if persistent {
			log.Warn("vector store: memory index is discarded when this command exits",
				slog.String("hint", "set VECTOR_STORE=qdrant to keep ingested vectors"),
			)
		}
		return rag.NewMemoryIndex(), backend, nil
	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "docqa")

		index, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are validated positive
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     getEnvBool("QDRANT_TLS", false),
		})
		if err != nil {
			return nil, "", fmt.Errorf("vector store: connect to qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant index ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		return index, backend, nil
	default:
		return nil, "", fmt.Errorf("vector store: unsupported VECTOR_STORE %q (valid: qdrant, memory)", backend)
	}
}

// newApp wires the catalog, vector index, embedders, pipeline and, when
// requested, the chat side. The caller must Close the result.
func newApp(ctx context.Context, log *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var (
		ragMetrics    *rag.Metrics
		ingestMetrics *ingestion.Metrics
		answerMetrics *answer.Metrics
	)
	if opts.registry != nil {
		ragMetrics = rag.NewMetrics(opts.registry)
		ingestMetrics = ingestion.NewMetrics(opts.registry)
		answerMetrics = answer.NewMetrics(opts.registry)
	}

	a.embedCfg = embedder.ConfigFromEnv()
	embedProvider, err := embedder.New(a.embedCfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("embedder initialised",
		slog.String("provider", a.embedCfg.Backend),
		slog.String("model", a.embedCfg.Model),
		slog.Int("dimensions", a.embedCfg.Dimensions),
	)

	if a.catalog, err = openCatalog(log); err != nil {
		return nil, err
	}
	if a.index, a.indexName, err = openIndex(ctx, log, a.embedCfg.Dimensions, opts.persistent); err != nil {
		return nil, err
	}

	gwCfg := rag.DefaultGatewayConfig()
	gwCfg.Dimensions = a.embedCfg.Dimensions
	gwCfg.PreferNativeDelete = getEnvBool("DOCQA_NATIVE_DELETE", gwCfg.PreferNativeDelete)
	if a.gateway, err = rag.NewGateway(a.index, gwCfg, ragMetrics); err != nil {
		return nil, err
	}

	ingestEmbedder, err := rag.NewBatchEmbedder(embedProvider, getEnvInt("DOCQA_EMBED_BATCH_SIZE", 0), ragMetrics)
	if err != nil {
		return nil, err
	}

	pipelineCfg := &ingestion.Config{
		Chunking: ingestion.ChunkingFromEnv(),
		Metrics:  ingestMetrics,
	}

	if opts.chat {
		a.providerCfg = provider.ConfigFromEnv()
		chatModel, err := provider.New(ctx, a.providerCfg)
		if err != nil {
			return nil, fmt.Errorf("model provider: %w", err)
		}
		log.Info("provider initialised", slog.String("provider", string(a.providerCfg.Backend)))

		if a.generator, err = answer.New(chatModel, &answer.Config{Metrics: answerMetrics}); err != nil {
			return nil, err
		}
		pipelineCfg.Summarizer = a.generator

		queryEmbedder, err := rag.NewCachingEmbedder(ingestEmbedder, getEnvInt("DOCQA_QUERY_CACHE_SIZE", rag.DefaultQueryCacheSize))
		if err != nil {
			return nil, err
		}
		retriever, err := rag.NewRetriever(queryEmbedder, a.gateway, ragMetrics)
		if err != nil {
			return nil, err
		}
		a.assistant, err = assistant.New(retriever, a.generator,
			assistant.WithLimits(getEnvInt("DOCQA_TOP_K", 0), getEnvInt("DOCQA_MAX_CONTEXT", 0)),
		)
		if err != nil {
			return nil, err
		}
	}

	if a.pipeline, err = ingestion.NewPipeline(ingestEmbedder, a.gateway, a.catalog, pipelineCfg); err != nil {
		return nil, err
	}
	return a, nil
}

// pingers returns the readiness probes for the wired dependencies.
func (a *app) pingers() []server.Pinger {
	pingers := []server.Pinger{server.NewDependencyPinger("catalog", a.catalog)}

	if q, ok := a.index.(*rag.QdrantIndex); ok {
		pingers = append(pingers, server.NewDependencyPinger("qdrant", q))
	}

	// Ollama answers GET / with 200 once it is serving.
	if a.embedCfg.Backend == "ollama" {
		pingers = append(pingers, server.NewHTTPPinger("embedder", a.embedCfg.Endpoint, nil))
	}
	if a.providerCfg != nil && a.providerCfg.Backend == provider.BackendOllama &&
		strings.TrimSuffix(a.providerCfg.Ollama.Host, "/") != strings.TrimSuffix(a.embedCfg.Endpoint, "/") {
		pingers = append(pingers, server.NewHTTPPinger("chat_model", a.providerCfg.Ollama.Host, nil))
	}
	return pingers
}

// Close releases the vector index and the catalog.
func (a *app) Close() error {
	var errs []error
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	} else if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.catalog != nil {
		errs = append(errs, a.catalog.Close())
	}
	return errors.Join(errs...)
}
