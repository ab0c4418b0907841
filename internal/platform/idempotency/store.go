// Package idempotency replays the stored response of a mutating request when a client retries it
// with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateCompleted means a stored response exists and must be replayed.
	StateCompleted
	// StatePending means another request is still running with this key.
	StatePending
)

// Record is a reserved or completed key.
type Record struct {
	Fingerprint string
	Completed   bool
	Status      int
	Header      http.Header
	Body        []byte
	ExpiresAt   time.Time
}

// Store persists reservations and completed responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key string, record Record, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
