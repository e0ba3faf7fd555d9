package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"

	// How long the "in-progress" lock holds before the handler must finish.
	provisionalLockTTL = 60 * time.Second
)

type idempEntry struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodySHA256 string    `json:"body_sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

type respRecorder struct {
	w    http.ResponseWriter
	buf  *bytes.Buffer
	code int
}

func (r *respRecorder) Header() http.Header { return r.w.Header() }
func (r *respRecorder) Write(b []byte) (int, error) {
	if r.buf != nil {
		r.buf.Write(b)
	}
	return r.w.Write(b)
}
func (r *respRecorder) WriteHeader(statusCode int) { r.code = statusCode; r.w.WriteHeader(statusCode) }

// IdempotencyMiddleware replays the stored response when a mutating request
// is retried with the same Idempotency-Key and an identical body. Requests
// without the header pass through untouched.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body)
			}
			r.Body = io.NopCloser(bytes.NewBuffer(body))
			bhash := bodyHash(body)

			storeKey := buildIdempotencyKey(r.Method, r.URL.Path, key)
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			entry := idempEntry{
				InProgress: true,
				BodySHA256: bhash,
				CreatedAt:  time.Now().UTC(),
			}
			acquired, err := provisionalSet(ctx, rdb, storeKey, entry)
			if err != nil {
				logger.Error("Idempotency store unavailable", "error", err)
				writeIdempotencyError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			if !acquired {
				cur, errLoad := loadIdempotencyEntry(ctx, rdb, storeKey)
				if errLoad != nil {
					logger.Error("Failed to load idempotency entry", "key", storeKey, "error", errLoad)
					writeIdempotencyError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
					return
				}

				if cur.BodySHA256 != "" && cur.BodySHA256 != bhash {
					writeIdempotencyError(w, http.StatusConflict, "Idempotency-Key reused with different body")
					return
				}
				if !cur.InProgress && cur.Code != 0 && len(cur.Body) > 0 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(cur.Code)
					w.Write(cur.Body)
					return
				}
				writeIdempotencyError(w, http.StatusConflict, "request is already in progress")
				return
			}

			rec := &respRecorder{w: w, buf: &bytes.Buffer{}, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			final := idempEntry{
				InProgress: false,
				Code:       rec.code,
				Body:       rec.buf.Bytes(),
				BodySHA256: bhash,
				CreatedAt:  time.Now().UTC(),
			}
			if err := saveFinalEntry(context.Background(), rdb, storeKey, final, ttl); err != nil {
				logger.Error("Failed to persist idempotency entry", "key", storeKey, "error", err)
			}
		})
	}
}

func buildIdempotencyKey(method, path, key string) string {
	return "idemp:" + method + ":" + path + ":" + key
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func provisionalSet(ctx context.Context, rdb *redis.Client, key string, entry idempEntry) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadIdempotencyEntry(ctx context.Context, rdb *redis.Client, key string) (idempEntry, error) {
	var entry idempEntry
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(raw, &entry)
	return entry, err
}

func saveFinalEntry(ctx context.Context, rdb *redis.Client, key string, entry idempEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, payload, ttl).Err()
}

func writeIdempotencyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"message": message},
	})
}
