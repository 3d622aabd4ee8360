// Package orchestrator runs the fixed sync workflow for a single request:
// search the catalog, score candidates, optionally disambiguate, insert
// into the target playlist, then verify. Each step carries its own retry
// policy and timeout; the run as a whole has a deadline and a cooperative
// cancellation token checked at step boundaries.
package orchestrator
