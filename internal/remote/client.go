package remote

import (
	"context"
	"sync"
)

// Kind names a per-user collection in the remote store.
type Kind string

const (
	KindSubjects    Kind = "subjects"
	KindAssessments Kind = "assessments"
)

// Doc is the wire shape of a document's fields.
type Doc map[string]any

// Document pairs a remote id with its fields.
type Document struct {
	ID     string
	Fields Doc
}

// Snapshot is the full current document set of one collection.
type Snapshot struct {
	Kind Kind
	Docs []Document
}

// Subscription is a cancellable stream of collection snapshots.
// C closes after Cancel.
type Subscription struct {
	C <-chan Snapshot

	cancel func()
	once   sync.Once
}

// NewSubscription wraps a snapshot channel and its cancel hook.
// Used by Client implementations.
func NewSubscription(c <-chan Snapshot, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Cancel stops snapshot delivery and closes C. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Client is implemented by remote document stores.
//
// All operations may fail independently. Create and Merge never clobber
// fields absent from the given doc (merge semantics). Subscribe never fails
// synchronously; delivery problems surface out of band as missed updates.
type Client interface {
	// Create adds a new document and returns its store-assigned id.
	Create(ctx context.Context, user string, kind Kind, doc Doc) (string, error)

	// Merge upserts fields into the document with the given id.
	Merge(ctx context.Context, user string, kind Kind, id string, doc Doc) error

	// Delete removes the document with the given id. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, user string, kind Kind, id string) error

	// Subscribe registers a push listener for the collection. The returned
	// subscription delivers the full current document set on every change,
	// starting with the state at subscribe time.
	Subscribe(user string, kind Kind) *Subscription
}

// UpdatedAtField is the server-maintained update timestamp, stamped by the
// store on every Create/Merge (milliseconds since epoch). Documents pushed by
// the sync engine never set it themselves.
const UpdatedAtField = "updatedAt"

// UpdatedAt extracts the server timestamp from a document, tolerating the
// numeric types that JSON decoding and in-process stores produce.
// Returns 0 when absent or malformed.
func UpdatedAt(doc Doc) int64 {
	switch v := doc[UpdatedAtField].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
