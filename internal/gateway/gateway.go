// Package gateway describes the document store the to-do stores persist to.
//
// A gateway keeps schemaless documents in named collections and supports
// partial updates, simple filtered queries, atomic write batches and live
// subscriptions that re-deliver the full matching result set after every
// relevant mutation.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Collection names used by the application.
const (
	Categories = "categories"
	Tasks      = "tasks"
	Users      = "users"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a create collides with an existing id
	// or a unique index.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrTooManyValues is returned for "in" filters above MaxInValues.
	ErrTooManyValues = errors.New("too many values in filter")
	// ErrInvalidQuery is returned for malformed queries.
	ErrInvalidQuery = errors.New("invalid query")
)

// Fields holds document data keyed by field name.
type Fields map[string]any

// Document is a stored record.
type Document struct {
	ID     string
	Fields Fields
}

// Gateway is the persistence contract shared by every backend.
type Gateway interface {
	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create stores a new document. An empty id is replaced by a generated one.
	Create(ctx context.Context, collection, id string, fields Fields) (Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Upsert merges fields into a document, creating it when missing.
	Upsert(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Find returns every document matching q.
	Find(ctx context.Context, q Query) ([]Document, error)
	// Commit applies every write of b atomically.
	Commit(ctx context.Context, b *Batch) error
	// Subscribe opens a live view of q. The subscription outlives ctx and must
	// be closed explicitly.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}

// NewID returns a new sortable document id.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// TimeLayout is the fixed-width layout documents store times in, so that
// string order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp formats t the way documents store times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTimestamp parses a stored timestamp, returning the zero time on failure.
func ParseTimestamp(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
