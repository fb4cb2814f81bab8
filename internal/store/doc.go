// Package store provides the SQLite-backed entity store: the durable local
// cache that the repository facade reads and writes immediately, the sync
// engine drains pending rows from, and the change reconciler folds remote
// snapshots into.
//
// Two tables, keyed by local primary key:
//   - subjects: keyed by id (also used as the remote document id)
//   - assessments: keyed by local_id (remote_id is an opaque server handle)
//
// Writes are insert-or-replace by primary key and atomic with respect to
// concurrent readers. Rows with a non-NULL pending_op hold unsynchronized
// local mutations; MarkAssessmentSynced/MarkSubjectSynced clear the marker
// once the remote store acknowledges the push.
//
// Observation: ObserveSubjects and ObserveAssessments return live views that
// re-emit the current result set after every committed write affecting the
// filter. Intermediate states may be coalesced, but the most recent state is
// always delivered.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Schema upgrades are additive only (ALTER TABLE ADD COLUMN), tracked via
// PRAGMA user_version, so a database created by an older build upgrades
// without data loss.
package store
