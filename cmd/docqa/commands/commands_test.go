package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/chunking"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/version"
)

// isolate points config discovery and the catalog at temp locations.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCQA_CONFIG", "")
	t.Setenv("LOG_LEVEL", "error")
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	t.Setenv("DOCQA_DB", dbPath)
	t.Chdir(t.TempDir())
	return dbPath
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "docqa "+version.Version) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRootCmd_EnvFile(t *testing.T) {
	isolate(t)
	t.Setenv("DOCQA_TEST_MARKER", "")
	os.Unsetenv("DOCQA_TEST_MARKER")

	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("DOCQA_TEST_MARKER=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--env-file", envPath, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := os.Getenv("DOCQA_TEST_MARKER"); got != "from-file" {
		t.Errorf("DOCQA_TEST_MARKER = %q, want from-file", got)
	}

	if _, err := run(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "version"); err == nil {
		t.Error("expected an error for a missing env file")
	}
}

func TestRootCmd_MissingConfig(t *testing.T) {
	isolate(t)

	if _, err := run(t, "--config", "/nonexistent/docqa.yaml", "version"); err == nil {
		t.Error("expected an error for an explicit missing config")
	}
}

func TestSourcesCmd(t *testing.T) {
	dbPath := isolate(t)

	out, err := run(t, "sources")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if !strings.Contains(out, "no sources ingested") {
		t.Errorf("empty catalog output = %q", out)
	}

	catalog, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = catalog.Put(context.Background(), store.Source{
		ID: "handbook", Kind: store.KindDocument, Title: "Handbook",
		Summary: "How we work.", ByteLength: 2048, ChunkCount: 4,
	})
	_ = catalog.Close()
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err = run(t, "sources", "--json")
	if err != nil {
		t.Fatalf("sources --json: %v", err)
	}
	var list []store.Source
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(list) != 1 || list[0].ID != "handbook" || list[0].ChunkCount != 4 {
		t.Errorf("list = %+v", list)
	}

	out, err = run(t, "sources", "handbook")
	if err != nil {
		t.Fatalf("sources handbook: %v", err)
	}
	if !strings.Contains(out, "How we work.") || !strings.Contains(out, "2.0 kB") {
		t.Errorf("detail output = %q", out)
	}

	if _, err := run(t, "sources", "missing"); err == nil {
		t.Error("expected an error for an unknown source")
	}
}

func TestPrintSources(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := printSources(&buf, []store.Source{{
		ID: "dQw4w9WgXcQ", Kind: store.KindVideo, Title: "Talk",
		ByteLength: 1500, ChunkCount: 2, CreatedAt: now.Add(-3 * time.Hour),
	}}, false, now)
	if err != nil {
		t.Fatalf("printSources: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	for _, want := range []string{"dQw4w9WgXcQ", "video", "1.5 kB", "3 hours ago"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
}

func TestIngestCmd_FlagValidation(t *testing.T) {
	isolate(t)

	cases := map[string][]string{
		"nothing to ingest":  {"ingest"},
		"text and path":      {"ingest", "--text", "hello", "notes.txt"},
		"id for many":        {"ingest", "--source-id", "x", "a.txt", "b.txt"},
		"negative chunking":  {"ingest", "--text", "hello", "--overlap", "-1"},
		"negative ask top-k": {"ask", "--top-k", "-1", "question"},
	}
	for name, args := range cases {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestWithInferred(t *testing.T) {
	t.Parallel()

	base := ingestion.Request{Title: "Explicit", Chunking: chunking.Override(100, 0)}
	got := withInferred(base, "https://youtu.be/dQw4w9WgXcQ", "transcript")

	if got.SourceID != "dQw4w9WgXcQ" || got.Kind != store.KindVideo {
		t.Errorf("inferred id/kind = %q/%q", got.SourceID, got.Kind)
	}
	if got.Title != "Explicit" {
		t.Errorf("explicit title overridden: %q", got.Title)
	}
	if got.Content != "transcript" || got.Chunking.ChunkSize != 100 {
		t.Errorf("request = %+v", got)
	}

	if got := withInferred(ingestion.Request{}, "/", "x"); got.SourceID == "" {
		t.Error("expected a generated id when nothing can be inferred")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DOCQA_TEST_INT", "42")
	t.Setenv("DOCQA_TEST_BAD", "forty")
	t.Setenv("DOCQA_TEST_BOOL", "true")
	t.Setenv("DOCQA_TEST_EMPTY", "")

	if got := getEnvInt("DOCQA_TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("DOCQA_TEST_BAD", 7); got != 7 {
		t.Errorf("getEnvInt fallback = %d", got)
	}
	if !getEnvBool("DOCQA_TEST_BOOL", false) || getEnvBool("DOCQA_TEST_EMPTY", false) {
		t.Error("getEnvBool mismatch")
	}
	if got := getEnvOrDefault("DOCQA_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("getEnvOrDefault = %q", got)
	}
}
