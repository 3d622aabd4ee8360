// Package daemon runs the tunesync background process: the HTTP API for
// submitting and observing sync runs, request validation at the boundary,
// and single-instance locking.
package daemon
