package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/brokerage-ledger/internal/auth"
	"github.com/josh-kwaku/brokerage-ledger/internal/handler"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
	"github.com/josh-kwaku/brokerage-ledger/internal/repository"
)

type idempotencyStore interface {
	Lookup(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyRecord, error)
	Claim(ctx context.Context, rec *repository.IdempotencyRecord) (bool, error)
	Complete(ctx context.Context, rec *repository.IdempotencyRecord) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

const (
	idempotencyTTL    = 24 * time.Hour
	pendingTTL        = time.Minute
	maxIdempotencyKey = 255
)

// Idempotency replays the stored response when a user repeats a mutating
// request with the same Idempotency-Key. The key is claimed before the
// handler runs, so concurrent duplicates get 409 instead of running twice.
// Server errors release the claim so the client can retry them.
func Idempotency(store idempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" || len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)

			now := time.Now().UTC()
			entry := &repository.IdempotencyRecord{
				Key:         key,
				UserID:      userID,
				Path:        r.URL.Path,
				RequestHash: reqHash,
				CreatedAt:   now,
				ExpiresAt:   now.Add(pendingTTL),
			}

			claimed, err := store.Claim(r.Context(), entry)
			if err != nil {
				log.Error("idempotency claim failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if !claimed {
				replay(w, r, store, log, key, userID, reqHash)
				return
			}

			// The response may already be on the wire, so store calls outlive the request.
			storeCtx := context.WithoutCancel(r.Context())
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := store.Release(storeCtx, key, userID); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			// The handler has run; from here a failed store leaves the claim
			// pending until it expires rather than reopening the key.
			completed = true
			entry.StatusCode = rec.statusCode
			entry.ResponseBody = rec.body.Bytes()
			entry.ExpiresAt = time.Now().UTC().Add(idempotencyTTL)
			if err := store.Complete(storeCtx, entry); err != nil {
				log.Error("idempotency cache store failed", "error", err)
			}
		})
	}
}

// replay answers a request whose key is already held by another request.
func replay(w http.ResponseWriter, r *http.Request, store idempotencyStore, log *slog.Logger, key string, userID uuid.UUID, reqHash string) {
	cached, err := store.Lookup(r.Context(), key, userID)
	if err != nil {
		log.Error("idempotency cache lookup failed", "error", err)
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return
	}

	switch {
	case cached != nil && cached.RequestHash != reqHash:
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
	case cached == nil || cached.Pending():
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
	default:
		log.Info("replaying stored response", "status", cached.StatusCode)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotent-Replayed", "true")
		w.WriteHeader(cached.StatusCode)
		if _, err := w.Write(cached.ResponseBody); err != nil {
			log.Error("failed to write idempotent replay", "error", err)
		}
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
