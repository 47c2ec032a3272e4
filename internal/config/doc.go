// Package config loads, normalizes, and validates the toml configuration for
// the overdub daemon and CLI.
package config
