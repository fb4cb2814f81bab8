// Package repo is the application-facing facade over the local store, the
// push engine and the change reconciler.
//
// Every mutation follows the same offline-first sequence: write the row
// locally with its pending marker, then request a sync run. The local write
// is the source of truth; a failed or absent network changes nothing about
// what callers observe. Observation goes through the store's live streams,
// so a view holding a stream sees its own writes immediately and remote
// changes as soon as the reconciler lands them.
package repo
