package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// DefaultMaxBytes caps how much of a file or response body is read.
	DefaultMaxBytes int64 = 32 << 20

	// DefaultFetchTimeout bounds a single HTTP fetch.
	DefaultFetchTimeout = 30 * time.Second

	defaultUserAgent = "docqa/1.0 (document ingestion)"
)

// ErrUnsupportedContent is returned for content that is neither PDF nor text.
var ErrUnsupportedContent = errors.New("ingestion: unsupported content type")

// ErrForbiddenAddress is returned when a fetch would connect to a loopback,
// private or otherwise non-public address.
var ErrForbiddenAddress = errors.New("ingestion: fetching from a non-public address is not allowed")

// reservedPrefixes are non-public ranges that netip has no predicate for.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

// ExtractorConfig holds the settings for an Extractor.
type ExtractorConfig struct {
	// MaxBytes is the largest input accepted. Defaults to DefaultMaxBytes.
	MaxBytes int64

	// HTTPTimeout is the timeout for each fetch. Defaults to DefaultFetchTimeout.
	HTTPTimeout time.Duration

	// UserAgent is sent with fetch requests.
	UserAgent string

	// HTTPClient overrides the client used for fetches. Optional. A custom
	// client bypasses the address policy below.
	HTTPClient *http.Client

	// AllowPrivateNetworks lets fetches reach loopback, private, link-local
	// and other non-public addresses. Leave it off wherever the URL comes
	// from a remote caller.
	AllowPrivateNetworks bool
}

// Extracted is the plain text pulled out of a file, URL or byte slice.
type Extracted struct {
	// Text is the extracted UTF-8 text, not yet normalized.
	Text string

	// ContentType is the detected MIME type, without parameters.
	ContentType string

	// ByteLength is the size of the original input.
	ByteLength int64

	// Name is the file name or last URL path segment, when known.
	Name string
}

// Extractor turns PDFs, plain text and HTML pages into text.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewExtractor constructs an Extractor, applying defaults for zero values.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultFetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: newTransport(cfg.AllowPrivateNetworks),
		}
	}
	return &Extractor{client: client, userAgent: cfg.UserAgent, maxBytes: cfg.MaxBytes}
}

// Extract reads locator, which is either an http(s) URL or a local path.
func (e *Extractor) Extract(ctx context.Context, locator string) (*Extracted, error) {
	if isRemote(locator) {
		return e.fetch(ctx, locator)
	}
	return e.readFile(locator)
}

// ExtractBytes extracts text from data. contentType may be empty, in which
// case the type is sniffed from the content.
func (e *Extractor) ExtractBytes(data []byte, contentType, name string) (*Extracted, error) {
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("ingestion: %s exceeds maximum size of %d bytes", displayName(name), e.maxBytes)
	}

	mime := resolveContentType(data, contentType)
	var (
		text string
		err  error
	)
	switch {
	case mime == "application/pdf":
		text, err = pdfText(data)
	case mime == "text/html" || mime == "application/xhtml+xml":
		text, err = htmlText(data, contentType)
	case isText(mime, data):
		text, err = decodeText(data, contentType)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedContent, mime, displayName(name))
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: extract %s: %w", displayName(name), err)
	}

	return &Extracted{
		Text:        text,
		ContentType: mime,
		ByteLength:  int64(len(data)),
		Name:        name,
	}, nil
}

// readFile extracts the text of a local file.
func (e *Extractor) readFile(p string) (*Extracted, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open %s: %w", p, err)
	}
	defer f.Close()

	data, err := readLimited(f, e.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", p, err)
	}

	// The extension is a better hint than sniffing for plain text formats
	// such as .md that mimetype reports as text/plain anyway.
	hint := ""
	if strings.EqualFold(filepath.Ext(p), ".pdf") {
		hint = "application/pdf"
	}
	return e.ExtractBytes(data, hint, filepath.Base(p))
}

// fetch retrieves a URL and extracts its text.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (*Extracted, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/pdf, text/plain, text/html;q=0.9, */*;q=0.1")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingestion: http get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	data, err := readLimited(resp.Body, e.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading body of %s: %w", rawURL, err)
	}
	return e.ExtractBytes(data, resp.Header.Get("Content-Type"), filenameFromURL(rawURL))
}

// newTransport clones the default transport. Unless allowPrivate is set,
// every dial, redirects included, is checked against the resolved address
// and proxies are disabled so the check sees the real destination.
func newTransport(allowPrivate bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if allowPrivate {
		return t
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refuseNonPublic,
	}
	t.DialContext = dialer.DialContext
	t.Proxy = nil
	return t
}

// refuseNonPublic is a net.Dialer Control hook. address is already resolved
// to an IP, so DNS names pointing at internal hosts are caught too.
func refuseNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !isPublic(addr) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
	}
	return nil
}

// isPublic reports whether addr is a globally routable unicast address.
func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// readLimited reads all of r, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds maximum size of %d bytes", limit)
	}
	return data, nil
}

// resolveContentType returns the declared media type, or the sniffed one
// when nothing useful was declared.
func resolveContentType(data []byte, declared string) string {
	mime := mediaType(declared)
	if mime == "" || mime == "application/octet-stream" || mime == "binary/octet-stream" {
		return mediaType(mimetype.Detect(data).String())
	}
	return mime
}

// mediaType strips parameters and lowercases a Content-Type value.
func mediaType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// isText reports whether mime names a textual format. Types mimetype does
// not know are sniffed from the data itself.
func isText(mime string, data []byte) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	if known := mimetype.Lookup(mime); known != nil {
		for m := known; m != nil; m = m.Parent() {
			if m.Is("text/plain") {
				return true
			}
		}
		return false
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// decodeText converts data to UTF-8, using the declared charset or a
// best guess when data is not already valid UTF-8.
func decodeText(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("transcoded result is not valid utf-8")
	}
	return string(decoded), nil
}

// htmlText returns the visible text of an HTML page. Block-level elements
// become line breaks; script, style and similar elements are dropped.
func htmlText(data []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}

	var (
		b    strings.Builder
		skip int
	)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if hiddenElements[string(name)] {
				skip++
			} else if blockElements[string(name)] {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if hiddenElements[string(name)] && skip > 0 {
				skip--
			} else if blockElements[string(name)] {
				b.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

var hiddenElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true, "svg": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
}

// pdfText extracts the plain text of every page of a PDF.
func pdfText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(out), nil
}

func isRemote(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func filenameFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func displayName(name string) string {
	if name == "" {
		return "input"
	}
	return name
}
