package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Pingable is anything with a context-aware Ping, such as *rag.QdrantIndex
// or *store.SQLiteStore.
type Pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts a component with its own Ping method to the
// Pinger interface used by GET /api/ready.
type DependencyPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// target is the component to probe.
	target Pingable
}

// NewDependencyPinger constructs a DependencyPinger named name.
func NewDependencyPinger(name string, target Pingable) *DependencyPinger {
	return &DependencyPinger{name: name, target: target}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping delegates to the wrapped component.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	return nil
}

// HTTPPinger probes an HTTP endpoint, typically the model or embedding
// backend's base URL, without spending tokens. Any response below 500
// counts as reachable.
type HTTPPinger struct {
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
	// url is the endpoint to GET.
	url string
	// client performs the probe.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses a client with a
// 5 second timeout.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET and accepts any non-5xx status.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe %s: status %d after %s", p.url, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return nil
}
