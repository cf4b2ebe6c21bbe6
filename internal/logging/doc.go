// Package logging constructs the process-wide slog logger and provides
// shared attribute helpers and standardized field names so task and step
// identifiers render consistently across components.
package logging
