// Package match implements the deterministic weighted-similarity scorer
// that ranks catalog candidates against a source record.
package match
