// Package supervisor owns the lifecycle of sync runs: it assigns run IDs,
// deduplicates idempotent submissions, bounds concurrency, and exposes
// status, progress, and cancellation.
package supervisor
