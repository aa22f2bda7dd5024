package ingestion

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestExtractBytes_PlainText(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{})

	got, err := e.ExtractBytes([]byte("hello world\n"), "", "notes.txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "hello world\n" || got.ContentType != "text/plain" || got.ByteLength != 12 {
		t.Errorf("got %+v", got)
	}
}

func TestExtractBytes_DecodesDeclaredCharset(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{})

	latin1 := []byte{'c', 'a', 'f', 0xe9}
	got, err := e.ExtractBytes(latin1, "text/plain; charset=iso-8859-1", "")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "café" {
		t.Errorf("Text = %q, want café", got.Text)
	}
}

func TestExtractBytes_HTML(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{})

	page := `<!DOCTYPE html><html><head><title>ignored</title><style>p{color:red}</style></head>
<body><h1>Hello</h1><p>World &amp; more</p><script>var tracking = 1;</script></body></html>`

	got, err := e.ExtractBytes([]byte(page), "", "index.html")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.ContentType != "text/html" {
		t.Errorf("ContentType = %q", got.ContentType)
	}
	for _, want := range []string{"Hello", "World & more"} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("text %q missing %q", got.Text, want)
		}
	}
	for _, unwanted := range []string{"tracking", "color:red", "ignored"} {
		if strings.Contains(got.Text, unwanted) {
			t.Errorf("text %q contains hidden content %q", got.Text, unwanted)
		}
	}
}

func TestExtractBytes_Unsupported(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{})

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	_, err := e.ExtractBytes(png, "", "image.png")
	if !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("want ErrUnsupportedContent, got %v", err)
	}
}

func TestExtractBytes_MalformedPDF(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{})

	if _, err := e.ExtractBytes([]byte("%PDF-1.4 truncated"), "application/pdf", "broken.pdf"); err == nil {
		t.Fatal("expected error for a truncated pdf")
	}
}

func TestExtractBytes_SizeLimit(t *testing.T) {
	t.Parallel()
	e := NewExtractor(ExtractorConfig{MaxBytes: 4})

	if _, err := e.ExtractBytes([]byte("too long"), "text/plain", ""); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestExtract_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "readme.md")
	if err := os.WriteFile(p, []byte("# Title\n\nBody text."), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewExtractor(ExtractorConfig{}).Extract(t.Context(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "# Title\n\nBody text." || got.Name != "readme.md" {
		t.Errorf("got %+v", got)
	}
}

func TestExtract_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewExtractor(ExtractorConfig{}).Extract(t.Context(), filepath.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want wrapped ErrNotExist, got %v", err)
	}
}

func TestExtract_URL(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/docs/guide.txt":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("fetched text"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	e := NewExtractor(ExtractorConfig{UserAgent: "docqa-test", HTTPClient: srv.Client()})

	got, err := e.Extract(t.Context(), srv.URL+"/docs/guide.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "fetched text" || got.Name != "guide.txt" {
		t.Errorf("got %+v", got)
	}
	if ua := <-agents; ua != "docqa-test" {
		t.Errorf("User-Agent = %q", ua)
	}

	if _, err := e.Extract(t.Context(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("want status error, got %v", err)
	}
}

func TestExtract_RefusesNonPublicAddresses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("metadata"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewExtractor(ExtractorConfig{}).Extract(t.Context(), srv.URL+"/latest")
	if !errors.Is(err, ErrForbiddenAddress) {
		t.Fatalf("want ErrForbiddenAddress, got %v", err)
	}
	if hits.Load() != 0 {
		t.Error("loopback server was reached")
	}

	got, err := NewExtractor(ExtractorConfig{AllowPrivateNetworks: true}).Extract(t.Context(), srv.URL+"/latest")
	if err != nil {
		t.Fatalf("Extract with private networks allowed: %v", err)
	}
	if got.Text != "metadata" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestExtract_RefusesRedirectToLoopback(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("internal"))
	}))
	t.Cleanup(target.Close)

	// The first hop is answered in memory with a redirect, which is then
	// followed through the guarded transport.
	guarded := NewExtractor(ExtractorConfig{}).client
	redirect := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Host == "public.example" {
				return &http.Response{
					StatusCode: http.StatusFound,
					Header:     http.Header{"Location": []string{target.URL + "/"}},
					Body:       http.NoBody,
					Request:    r,
				}, nil
			}
			return guarded.Transport.RoundTrip(r)
		}),
	}

	_, err := NewExtractor(ExtractorConfig{HTTPClient: redirect}).Extract(t.Context(), "http://public.example/page")
	if !errors.Is(err, ErrForbiddenAddress) {
		t.Fatalf("want ErrForbiddenAddress, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestIsPublic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"::", false},
		{"100.64.0.1", false},
		{"224.0.0.1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tt := range tests {
		if got := isPublic(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("isPublic(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
