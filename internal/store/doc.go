// Package store provides persistent storage for coven-bot using SQLite.
//
// # Data Models
//
//   - Checkpoint: the resumable gateway position of one bot (last sequence
//     number, session id, cached gateway URL)
//   - DispatchRecord: one dispatched message and its outcome, for auditing
//
// # Interfaces
//
// CheckpointStore is the narrow view the gateway session depends on.
// DispatchLog is the view bot instances depend on. Store combines both and
// SQLiteStore implements it; MockStore is an in-memory implementation for
// tests.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests that want real SQL.
package store
