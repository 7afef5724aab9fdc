package middlewares

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/pkg/cache"
)

const idempotencyOperation = "create-job"

// Idempotency rejects a request whose X-Idempotency-Key was already used.
// Requests without the header pass through, as does everything when c is nil.
// If the key cannot be checked the request is refused: a duplicate
// submission spends the budget twice.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _ := r.Context().Value(ContextKeyIdempotencyKey).(string)
			if key == "" {
				key = r.Header.Get(HeaderXIdempotencyKey)
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			requestID, _ := r.Context().Value(ContextKeyRequestID).(string)
			cacheKey := c.GenerateKey(idempotencyOperation, key)
			reserved, err := c.Reserve(r.Context(), cacheKey, requestID, ttl)
			if err != nil {
				slog.ErrorContext(r.Context(), "idempotency check failed", "idempotency_key", key, "error", err)
				writeError(w, http.StatusServiceUnavailable, "idempotency_unavailable", "could not verify the idempotency key")
				return
			}
			if !reserved {
				owner, err := c.Get(r.Context(), cacheKey)
				if err != nil {
					slog.WarnContext(r.Context(), "idempotency owner lookup failed", "idempotency_key", key, "error", err)
				}
				slog.WarnContext(r.Context(), "duplicate submission rejected", "idempotency_key", key, "first_request_id", owner)
				writeJSON(w, http.StatusConflict, map[string]string{
					"error":     "duplicate_submission",
					"message":   "a job was already submitted with this idempotency key",
					"requestId": owner,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
