package server

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second allowed per client.
	defaultRateLimit = 10

	// defaultRateBurst is the per-client burst size.
	defaultRateBurst = 20

	// defaultRateClients bounds how many client buckets are remembered. The
	// least recently seen client is forgotten first.
	defaultRateClients = 4096
)

// rateLimiter enforces a token bucket per client IP on the chat and ingest
// routes, which each cost an embedding call and usually a model call.
type rateLimiter struct {
	// buckets maps client IP to its token bucket.
	buckets *lru.Cache[string, *rate.Limiter]

	rps   rate.Limit
	burst int

	// trustProxy keys clients by the first X-Forwarded-For address.
	trustProxy bool
}

// newRateLimiter constructs a rateLimiter remembering up to clients buckets.
func newRateLimiter(rps float64, burst, clients int, trustProxy bool) (*rateLimiter, error) {
	if clients <= 0 {
		clients = defaultRateClients
	}
	buckets, err := lru.New[string, *rate.Limiter](clients)
	if err != nil {
		return nil, fmt.Errorf("server: rate limiter: %w", err)
	}
	return &rateLimiter{
		buckets:    buckets,
		rps:        rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
	}, nil
}

// bucket returns the token bucket of client, creating it on first sight.
func (rl *rateLimiter) bucket(client string) *rate.Limiter {
	if b, ok := rl.buckets.Get(client); ok {
		return b
	}
	b := rate.NewLimiter(rl.rps, rl.burst)
	if prev, ok, _ := rl.buckets.PeekOrAdd(client, b); ok {
		return prev
	}
	return b
}

// middleware rejects over-limit requests with 429 and a Retry-After header
// telling the client when its next token is due.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r, rl.trustProxy)

		res := rl.bucket(client).Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", client),
				slog.Duration("retry_after", delay),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds delay up to whole seconds, at least one.
func retryAfterSeconds(delay time.Duration) int {
	secs := math.Ceil(delay.Seconds())
	switch {
	case secs < 1:
		return 1
	case secs > math.MaxInt32:
		return math.MaxInt32
	}
	return int(secs)
}

// clientIP returns the address requests are limited by. RemoteAddr is used
// unless trustProxy is set and the request carries X-Forwarded-For.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
