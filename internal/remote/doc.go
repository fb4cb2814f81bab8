// Package remote abstracts the network document store the sync engine pushes
// to and the change reconciler pulls from.
//
// The store is organized per user: each user has a `subjects` and an
// `assessments` collection of schemaless documents. A document's remote id is
// assigned by the store and is independent of the local primary key (except
// for subjects, where the caller supplies the local id as the document id).
//
// Subscriptions deliver the full current document set of a collection
// whenever any document in it changes. Subscription errors are delivered out
// of band (logged, skipped) and mean "no update", never data loss - the next
// successful snapshot carries the complete state again.
//
// Two implementations:
//   - MemoryClient: in-process store with snapshot fan-out and fault
//     injection; the test double and the offline default.
//   - HTTPClient: a REST document-store client with poll-based subscriptions.
package remote
