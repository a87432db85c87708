// Package logs provides file tailing helpers for the CLI.
//
// It streams log files with bounded memory usage, supports negative offsets
// for "last N lines" reads, and powers follow-mode updates for
// `lectern logs --follow`. Callers supply context deadlines so background
// polling shuts down cleanly when the CLI exits.
package logs
