package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/logging"
)

func TestRequestLogger_RequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context()) == slog.Default() {
			t.Error("expected a request-scoped logger in the context")
		}
		seen = w.Header().Get(requestIDHeader)
	}))

	cases := []struct {
		name, incoming string
		reuse          bool
	}{
		{"generated", "", false},
		{"caller supplied", "trace-42.a_b", true},
		{"unsafe value replaced", "bad id\nwith newline", false},
		{"too long replaced", strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		if tc.incoming != "" {
			req.Header.Set(requestIDHeader, tc.incoming)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		got := w.Header().Get(requestIDHeader)
		if got != seen {
			t.Errorf("%s: handler saw %q, response carries %q", tc.name, seen, got)
		}
		if tc.reuse {
			if got != tc.incoming {
				t.Errorf("%s: id = %q, want %q", tc.name, got, tc.incoming)
			}
			continue
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("%s: id %q is not a generated uuid", tc.name, got)
		}
	}
}

func TestRequestLogger_RecoversPanic(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	h := requestLogger(slog.New(slog.NewJSONHandler(&logs, nil)), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorResponse
	decode(t, w, &body)
	if body.Error != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("error body = %q", body.Error)
	}
	if !strings.Contains(logs.String(), "handler panic") || !strings.Contains(logs.String(), `"status":500`) {
		t.Errorf("logs missing panic or status: %s", logs.String())
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusCreated || !rw.wrote {
		t.Errorf("status = %d wrote = %v", rw.status, rw.wrote)
	}
}
