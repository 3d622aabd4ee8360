// Package runstate defines the run lifecycle model: steps, statuses,
// progress derivation, the live in-memory store, and the SQLite history
// store that keeps terminal results across restarts.
package runstate
