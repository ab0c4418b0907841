package idempotency

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/omnipizza/storefront/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore shares reservations across storefront instances.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection *pfirestore.Collection[firestoreRecord]
}

// NewFirestoreStore constructs a store on the given collection, "idempotency_keys" when empty.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{
		provider:   provider,
		collection: pfirestore.NewCollection[firestoreRecord](provider, collection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.collection.Ref(ctx, documentID(key))
	if err != nil {
		return StateNew, Record{}, err
	}

	state := StateNew
	var result Record
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, exists, err := s.collection.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if exists && now.Before(current.Data.ExpiresAt) {
			if current.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			result = current.Data.toRecord()
			state = StatePending
			if result.Completed {
				state = StateCompleted
			}
			return nil
		}
		record := firestoreRecord{Fingerprint: fingerprint, ExpiresAt: now.UTC().Add(ttl)}
		result = record.toRecord()
		state = StateNew
		return tx.Set(ref, record)
	})
	return state, result, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.collection.Ref(ctx, documentID(key))
	if err != nil {
		return err
	}
	doc := firestoreRecord{
		Fingerprint: record.Fingerprint,
		Completed:   true,
		Status:      record.Status,
		Header:      replayableHeader(record.Header),
		Body:        record.Body,
		ExpiresAt:   now.UTC().Add(ttl),
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError(s.collection.Op("complete"), err)
	}
	return nil
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.collection.Delete(ctx, documentID(key))
}

type firestoreRecord struct {
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Header:      http.Header(r.Header),
		Body:        r.Body,
		ExpiresAt:   r.ExpiresAt,
	}
}
