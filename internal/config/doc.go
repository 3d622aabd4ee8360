// Package config loads, normalizes, and validates tunesync configuration
// from TOML files with sensible defaults.
package config
