package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document is a decoded snapshot with its update time, which callers use as a version.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Collection provides typed access to one Firestore collection. T must be a struct with
// firestore tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Get fetches and decodes a document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.decode(snap)
}

// GetTx fetches and decodes a document inside a transaction.
func (c *Collection[T]) GetTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (Document[T], bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		wrapped := WrapError(c.op("get"), err)
		var repoErr *Error
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return Document[T]{}, false, nil
		}
		return Document[T]{}, false, wrapped
	}
	doc, err := c.decode(snap)
	return doc, err == nil, err
}

// Delete removes a document. Missing documents are not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// Ref resolves a document reference.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	if c.provider == nil || c.name == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: collection is not configured"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

// Op names a repository operation for error messages.
func (c *Collection[T]) Op(action string) string { return c.op(action) }

func (c *Collection[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

func (c *Collection[T]) op(action string) string {
	name := c.name
	if name == "" {
		name = "firestore"
	}
	return name + "." + action
}
