package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem is the Idempotency-Key middleware guarding the settle endpoint.
// Keys are claimed in Redis for TTL; a second request presenting the same key
// inside that window is rejected as a replay.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// hashKey namespaces and fixes the length of caller-supplied keys so an
// arbitrarily long header cannot bloat Redis.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware claims the request's Idempotency-Key before the handler runs.
// Requests without the header pass through unguarded.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := hashKey(header)
		ok, err := i.R.SetNX(r.Context(), key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL",
				"idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// Reset the TTL even if the handler panics, so the key expires.
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
