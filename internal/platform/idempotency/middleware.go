package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omnipizza/storefront/internal/platform/httpx"
)

const (
	// HeaderName carries the client supplied key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks a response served from the store.
	ReplayHeader = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	ttl    time.Duration
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// Option customises the middleware.
type Option func(*middlewareConfig)

// WithTTL sets how long completed responses are replayable.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.now = clock
		}
	}
}

// WithLogger receives store failures.
func WithLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// Middleware replays completed responses for requests that repeat an Idempotency-Key with the
// same method, path and body. Requests without a key pass straight through. Server errors are
// not stored so the client may retry them.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := middlewareConfig{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(io.LimitReader(r.Body, httpx.MaxBodyBytes+1))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := sha256Hex([]byte(r.Method + "|" + r.URL.Path + "|" + sha256Hex(body)))
			state, record, err := store.Reserve(ctx, key, fingerprint, cfg.now().UTC(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				cfg.log(ctx, "idempotency.reserve.failed", map[string]any{"error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				replay(w, record)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(recorder, r)

			if recorder.status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					cfg.log(ctx, "idempotency.release.failed", map[string]any{"error": err.Error()})
				}
			} else {
				completed := Record{Fingerprint: fingerprint, Status: recorder.status(), Header: recorder.header, Body: recorder.body.Bytes()}
				if err := store.Complete(ctx, key, completed, cfg.now().UTC(), cfg.ttl); err != nil {
					cfg.log(ctx, "idempotency.complete.failed", map[string]any{"error": err.Error()})
				}
			}
			recorder.flush(w)
		})
	}
}

func (cfg middlewareConfig) log(ctx context.Context, event string, fields map[string]any) {
	if cfg.logger != nil {
		cfg.logger(ctx, event, fields)
	}
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.code == 0 {
		b.code = status
	}
}

func (b *bufferedWriter) Write(data []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(data)
}

func (b *bufferedWriter) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.status())
	_, _ = w.Write(b.body.Bytes())
}
