// Package services defines the shared error taxonomy for external
// collaborators and context annotation helpers used for log correlation.
//
// Errors crossing a collaborator boundary are tagged with one of the
// sentinel markers so the orchestrator can classify them as retryable or
// terminal without inspecting transport details.
package services
