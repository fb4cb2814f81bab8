// Package reconcile applies remote collection snapshots to the local store.
//
// While a user is signed in, the reconciler holds one subscription per
// collection and upserts every document from each snapshot. Local rows with
// an unsynced mutation that is newer than the remote document are left alone;
// the push path resolves them. Malformed documents are logged and skipped,
// never fatal, because the next snapshot carries the full state again.
package reconcile
