// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI. Defaults live in defaults.go; a commented
// sample file is embedded and written by "extracto config init".
package config
