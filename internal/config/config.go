// Package config loads an optional YAML file into the process environment.
// Every setting is read from env vars elsewhere in docqa; the file only
// supplies values for variables the environment leaves unset.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCQA_CONFIG environment variable
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
//
// If no file is found docqa runs entirely from env vars.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config mirrors the env vars docqa reads. Each leaf field carries the name
// of its variable in an env tag.
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ModelConfig selects and tunes the chat model used for answers and summaries.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, ark, gemini.
	Provider    string  `yaml:"provider" env:"MODEL_PROVIDER"`
	MaxTokens   int     `yaml:"max_tokens" env:"MODEL_MAX_TOKENS"`
	Temperature float32 `yaml:"temperature" env:"MODEL_TEMPERATURE"`

	Ollama struct {
		Host  string `yaml:"host" env:"OLLAMA_HOST"`
		Model string `yaml:"model" env:"OLLAMA_MODEL"`
	} `yaml:"ollama"`

	OpenAI struct {
		APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
		Model   string `yaml:"model" env:"OPENAI_MODEL"`
		BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	} `yaml:"openai"`

	Azure struct {
		APIKey     string `yaml:"api_key" env:"AZURE_OPENAI_API_KEY"`
		Endpoint   string `yaml:"endpoint" env:"AZURE_OPENAI_ENDPOINT"`
		Deployment string `yaml:"deployment" env:"AZURE_OPENAI_DEPLOYMENT"`
		APIVersion string `yaml:"api_version" env:"AZURE_OPENAI_API_VERSION"`
	} `yaml:"azure"`

	Ark struct {
		APIKey  string `yaml:"api_key" env:"ARK_API_KEY"`
		Model   string `yaml:"model" env:"ARK_MODEL"`
		BaseURL string `yaml:"base_url" env:"ARK_BASE_URL"`
	} `yaml:"ark"`

	Gemini struct {
		APIKey string `yaml:"api_key" env:"GOOGLE_API_KEY"`
		Model  string `yaml:"model" env:"GEMINI_MODEL"`
	} `yaml:"gemini"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Provider is one of ollama, openai, azure.
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	APIKey     string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
	BatchSize  int    `yaml:"batch_size" env:"DOCQA_EMBED_BATCH_SIZE"`
	// QueryCacheSize bounds the query embedding cache.
	QueryCacheSize int `yaml:"query_cache_size" env:"DOCQA_QUERY_CACHE_SIZE"`
}

// VectorStoreConfig selects the vector index.
type VectorStoreConfig struct {
	// Backend is qdrant or memory.
	Backend string `yaml:"backend" env:"VECTOR_STORE"`
	// NativeDelete lets the index delete a source by filter. Unset keeps
	// the default of true.
	NativeDelete *bool `yaml:"native_delete" env:"DOCQA_NATIVE_DELETE"`

	Qdrant struct {
		Host       string `yaml:"host" env:"QDRANT_HOST"`
		Port       int    `yaml:"port" env:"QDRANT_PORT"`
		Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
		APIKey     string `yaml:"api_key" env:"QDRANT_API_KEY"`
		TLS        bool   `yaml:"tls" env:"QDRANT_TLS"`
	} `yaml:"qdrant"`
}

// ChunkingConfig holds the default chunk sizing, in words.
type ChunkingConfig struct {
	Size    int `yaml:"size" env:"DOCQA_CHUNK_SIZE"`
	Overlap int `yaml:"overlap" env:"DOCQA_CHUNK_OVERLAP"`
}

// RetrievalConfig holds the default retrieval limits.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" env:"DOCQA_TOP_K"`
	// MaxContext is the context budget in characters.
	MaxContext int `yaml:"max_context" env:"DOCQA_MAX_CONTEXT"`
}

// CatalogConfig locates the SQLite source catalog.
type CatalogConfig struct {
	DBPath string `yaml:"db_path" env:"DOCQA_DB"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"DOCQA_HOST"`
	Port int    `yaml:"port" env:"DOCQA_PORT"`
	// APIKey is a comma-separated list of accepted keys. Prefer DOCQA_API_KEY.
	APIKey string `yaml:"api_key" env:"DOCQA_API_KEY"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is json or text.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// TracingConfig holds Langfuse credentials.
type TracingConfig struct {
	PublicKey string `yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	Host      string `yaml:"host" env:"LANGFUSE_HOST"`
}

// setting is one env var and the value a Config assigns it.
type setting struct {
	key   string
	value string
}

// settings flattens cfg into its env tags, in declaration order. Zero values
// yield an empty value.
func settings(cfg *Config) []setting {
	var out []setting
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			f, fv := t.Field(i), v.Field(i)
			if fv.Kind() == reflect.Struct {
				walk(fv)
				continue
			}
			if key := f.Tag.Get("env"); key != "" {
				out = append(out, setting{key: key, value: format(fv)})
			}
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return out
}

// format renders a leaf field as an env value, or "" when it is zero. A
// non-nil pointer is rendered even when it points at a zero value.
func format(v reflect.Value) string {
	if v.IsZero() {
		return ""
	}
	switch v.Kind() {
	case reflect.Pointer:
		if s := format(v.Elem()); s != "" {
			return s
		}
		return fmt.Sprint(v.Elem().Interface())
	case reflect.String:
		return v.String()
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		panic(fmt.Sprintf("config: unsupported field kind %s", v.Kind()))
	}
}

// EnvKeys lists every env var a config file can set.
func EnvKeys() []string {
	s := settings(&Config{})
	keys := make([]string, len(s))
	for i, kv := range s {
		keys[i] = kv.key
	}
	return keys
}

// Load finds and parses a config file, then exports each non-empty value
// whose env var is unset. It returns the path that was loaded, or "" when
// there is no file.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, s := range settings(&cfg) {
		if s.value == "" || os.Getenv(s.key) != "" {
			continue
		}
		if err := os.Setenv(s.key, s.value); err != nil {
			return "", fmt.Errorf("config: set %s: %w", s.key, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file that exists. An explicit
// path that does not exist is an error.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("DOCQA_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docqa", "config.yaml"))
	}
	candidates = append(candidates, "docqa.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}
