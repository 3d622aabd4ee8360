// Package logging builds slog loggers with console and JSON handlers and
// provides standardized attribute keys and context-derived fields shared
// across tunesync components.
package logging
