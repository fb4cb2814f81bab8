// Package entity defines the domain types shared by the local store, the
// sync engine, and the reconciler.
//
// Identity rules:
//   - Subject.ID and Assessment.LocalID are assigned locally on creation and
//     never change. They are the only stable identities.
//   - Assessment.RemoteID is an opaque handle assigned by the remote store
//     once a create is acknowledged. It must never be used for local identity
//     comparisons.
//   - Subjects reuse their local ID as the remote document id, so they carry
//     no separate remote handle.
//
// A row with a non-empty Pending op holds an unsynchronized local mutation.
// An empty Pending op means the row's state was last acknowledged by (or
// received from) the remote store.
package entity
