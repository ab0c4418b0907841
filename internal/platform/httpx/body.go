package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes int64 = 64 * 1024

var (
	// ErrBodyTooLarge is returned when a request body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrInvalidJSON is returned for malformed JSON bodies.
	ErrInvalidJSON = errors.New("invalid JSON body")
)

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	limited := io.LimitReader(r.Body, MaxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if int64(len(data)) > MaxBodyBytes {
		return ErrBodyTooLarge
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// WriteDecodeError maps DecodeJSON failures to the error envelope.
func WriteDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		WriteError(r.Context(), w, NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		return
	}
	WriteError(r.Context(), w, NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
}
