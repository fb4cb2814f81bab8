// Package harness executes YAML sync scenarios against a fully wired stack:
// a real on-disk store, the in-process remote, the push engine and the
// reconciler, all driven by a manual clock and sequential ids.
//
// A scenario is a list of steps (local edits, sign-in, sync runs, remote
// snapshots, clock advances) followed by assertions over the final state.
// The final state also golden-snapshots to testdata/golden, so a behavior
// change shows up as a readable diff rather than a failing count.
//
// Determinism rules: the clock only moves on advance_ms steps, snapshots are
// applied synchronously, and sync runs push one row at a time. Two runs of
// the same scenario produce byte-identical dumps.
package harness
