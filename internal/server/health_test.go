package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/version"
)

// fakePinger is a Pinger returning err.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// barrierPinger succeeds only once every pinger sharing wg has started.
type barrierPinger struct {
	name string
	wg   *sync.WaitGroup
}

func (b *barrierPinger) Name() string { return b.name }

func (b *barrierPinger) Ping(ctx context.Context) error {
	b.wg.Done()
	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	// Liveness stays open even when an API key is configured.
	s, _ := newTestServer(t, &fakeAsker{}, newFakeCatalog(), &Config{APIKey: "secret"})
	w := do(t, s, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body healthResponse
	decode(t, w, &body)
	if body.Status != "ok" || body.Version != version.Version {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		pingers   []Pinger
		status    int
		failing   []string
		wantNames []string
	}{
		{
			name:      "no dependencies",
			status:    http.StatusOK,
			wantNames: []string{},
		},
		{
			name:      "all healthy",
			pingers:   []Pinger{&fakePinger{name: "catalog"}, &fakePinger{name: "qdrant"}},
			status:    http.StatusOK,
			wantNames: []string{"catalog", "qdrant"},
		},
		{
			name: "qdrant down",
			pingers: []Pinger{
				&fakePinger{name: "catalog"},
				&fakePinger{name: "qdrant", err: errors.New("connection refused")},
			},
			status:    http.StatusServiceUnavailable,
			failing:   []string{"qdrant"},
			wantNames: []string{"catalog", "qdrant"},
		},
		{
			name: "everything down",
			pingers: []Pinger{
				&fakePinger{name: "embedder", err: errors.New("timeout")},
				&fakePinger{name: "catalog", err: errors.New("database is locked")},
			},
			status:    http.StatusServiceUnavailable,
			failing:   []string{"embedder", "catalog"},
			wantNames: []string{"embedder", "catalog"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServer(t, &fakeAsker{}, newFakeCatalog(), &Config{Pingers: tc.pingers, APIKey: "secret"})
			w := do(t, s, http.MethodGet, "/api/ready", "")
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}

			var resp readyResponse
			decode(t, w, &resp)
			if resp.Ready != (tc.status == http.StatusOK) {
				t.Errorf("ready = %v", resp.Ready)
			}
			if resp.Checks == nil {
				t.Fatal("checks must encode as an array")
			}

			names := make([]string, 0, len(resp.Checks))
			failed := map[string]bool{}
			for _, c := range resp.Checks {
				names = append(names, c.Name)
				if !c.OK {
					failed[c.Name] = true
					if c.Error == "" {
						t.Errorf("%s: failing check without error", c.Name)
					}
				}
			}
			if len(names) != len(tc.wantNames) {
				t.Fatalf("checks = %v, want %v", names, tc.wantNames)
			}
			for i := range names {
				if names[i] != tc.wantNames[i] {
					t.Errorf("checks = %v, want %v", names, tc.wantNames)
					break
				}
			}
			if len(failed) != len(tc.failing) {
				t.Errorf("failed = %v, want %v", failed, tc.failing)
			}
			for _, n := range tc.failing {
				if !failed[n] {
					t.Errorf("%s should have failed", n)
				}
			}
		})
	}
}

func TestProbeAll_RunsConcurrently(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	wg.Add(3)
	pingers := []Pinger{
		&barrierPinger{name: "a", wg: &wg},
		&barrierPinger{name: "b", wg: &wg},
		&barrierPinger{name: "c", wg: &wg},
	}

	// Sequential probes would each wait for the others until the timeout.
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	checks := probeAll(ctx, pingers)
	for i, c := range checks {
		if !c.OK {
			t.Errorf("check %d (%s) failed: %s", i, c.Name, c.Error)
		}
		if c.Name != pingers[i].Name() {
			t.Errorf("check %d = %s, want registration order", i, c.Name)
		}
	}
}
