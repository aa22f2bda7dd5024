package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token.
const apiKeyHeader = "X-API-Key"

// authMiddleware requires one of the comma-separated keys in apiKeys on
// every request, as "Authorization: Bearer <key>" or "X-API-Key: <key>".
// Several keys allow rotation without downtime. An empty apiKeys disables
// the check; New warns about that once at startup. Keys are never logged.
func authMiddleware(apiKeys string, next http.Handler) http.Handler {
	digests := keyDigests(apiKeys)
	if len(digests) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := presentedKey(r)
		if token == "" {
			log.Warn("auth: no credentials presented")
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa"`)
			writeError(w, r, http.StatusUnauthorized, "authorization required")
			return
		}
		if !matchesAny(digests, token) {
			log.Warn("auth: invalid key")
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// keyDigests hashes each non-empty key so comparisons run on equal-length
// inputs.
func keyDigests(apiKeys string) [][sha256.Size]byte {
	var digests [][sha256.Size]byte
	for k := range strings.SplitSeq(apiKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	return digests
}

// matchesAny compares token against every digest without short-circuiting.
func matchesAny(digests [][sha256.Size]byte, token string) bool {
	sum := sha256.Sum256([]byte(token))
	match := 0
	for _, d := range digests {
		match |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	return match == 1
}

// presentedKey returns the Bearer token, else the X-API-Key value.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}
