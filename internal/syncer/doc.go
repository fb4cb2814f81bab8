// Package syncer pushes locally pending rows to the remote document store.
//
// The Engine drains the pending set in a single pass: every row whose
// pending_op is set (and every subject not yet owned or marked dirty) gets
// exactly one remote call per run. Rows fail independently; a network error
// leaves the row pending for the next run, a permanent rejection bumps the
// row's attempt counter so it eventually drops out of the drain query instead
// of retrying forever.
//
// The Runner serializes runs: triggers arriving while a run is in flight
// coalesce into at most one follow-up run, so concurrent writers can fire
// Trigger freely without ever overlapping pushes.
package syncer
