package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Expired records are dropped lazily on Reserve.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	for other, record := range s.records {
		if !now.Before(record.ExpiresAt) {
			delete(s.records, other)
		}
	}

	record, ok := s.records[id]
	if !ok {
		record = Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
		s.records[id] = record
		return StateNew, record, nil
	}
	if record.Fingerprint != fingerprint {
		return StateNew, Record{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return StateCompleted, record, nil
	}
	return StatePending, record, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record.Completed = true
	record.Header = replayableHeader(record.Header)
	record.Body = append([]byte(nil), record.Body...)
	record.ExpiresAt = now.Add(ttl)

	s.mu.Lock()
	s.records[documentID(key)] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, documentID(key))
	s.mu.Unlock()
	return nil
}
