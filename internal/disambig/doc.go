// Package disambig resolves ambiguous catalog matches by asking a language
// model to pick among the top scored candidates. The client makes exactly one
// request per call; retry policy lives with the caller.
package disambig
