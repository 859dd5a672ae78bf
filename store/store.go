package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field matches a value.
type Filter struct {
	Path  string
	Op    Op
	Value any
}

// Query describes a collection read. Path may address a nested
// subcollection, e.g. "groupConversations/abc/messages".
type Query struct {
	Path    string
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Document is a snapshot of a single stored document.
type Document struct {
	ID         string
	CreateTime time.Time
	Data       map[string]any
}

// UpdateKind selects the mutation applied to a document field.
type UpdateKind int

const (
	UpdateSet UpdateKind = iota
	UpdateArrayUnion
	UpdateArrayRemove
)

// Update mutates one field of an existing document.
type Update struct {
	Path  string
	Kind  UpdateKind
	Value any
}

// Write pairs a document reference with its updates, for atomic
// multi-document commits.
type Write struct {
	Collection string
	DocID      string
	Updates    []Update
}

// CancelFunc releases a live subscription. Safe to call more than once.
type CancelFunc func()

// SnapshotFunc receives the full result set of a subscribed query each
// time it changes. Emissions for one subscription arrive in commit
// order; there is no ordering guarantee across subscriptions.
type SnapshotFunc func(ctx context.Context, docs []Document)

// Store is the document database surface the app consumes: one-shot
// reads, live subscriptions and writes against named collections.
// Implementations: Firestore (production) and Memory (tests).
type Store interface {
	// GetAll runs the query once and returns the matching documents.
	GetAll(ctx context.Context, q Query) ([]Document, error)

	// Get fetches a single document by ID. Returns ErrNotFound when
	// the document does not exist.
	Get(ctx context.Context, collection, docID string) (Document, error)

	// Add creates a document with a generated ID and returns it.
	// Fields holding ServerTimestamp are assigned commit time.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)

	// Update applies field updates to an existing document.
	Update(ctx context.Context, collection, docID string, updates []Update) error

	// ApplyAll commits every write atomically: either all documents
	// change or none do.
	ApplyAll(ctx context.Context, writes []Write) error

	// Delete removes a document. Deleting a missing document is not
	// an error.
	Delete(ctx context.Context, collection, docID string) error

	// Subscribe registers fn to run for the current result set of q
	// and again after every change, until the returned CancelFunc is
	// called or ctx is done. Callbacks for one subscription never run
	// concurrently with each other.
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error)
}

// serverTimestamp is the sentinel replaced by commit time on write.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be assigned the store's commit time.
func ServerTimestamp() any { return serverTimestamp{} }
