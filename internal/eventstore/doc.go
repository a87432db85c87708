// Package eventstore persists sessions as append-only event logs plus a
// SQLite catalog. The log is the source of truth: one JSON record per line,
// fsynced on append, replayed through the session state machine on load. The
// catalog indexes sessions for listing and resume and carries denormalized
// snapshots (status, progress, counts) that are always recomputable from the
// log.
package eventstore
