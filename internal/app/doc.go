// Package app assembles the engine from a configuration: local store, remote
// client, push engine, background sync runner, reconciler and the repository
// facade, wired the way production composes them. An empty remote URL runs
// the whole stack offline against the in-process document store.
package app
