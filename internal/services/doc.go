// Package services provides shared infrastructure for the pipeline's
// external collaborators: the error taxonomy used to classify step failures
// and context annotation helpers for structured logging.
//
// Errors are tagged with sentinel markers (ErrConfiguration, ErrNotFound,
// ErrParse, ErrLLM, ErrInvalidState, ErrTransient) via Wrap so callers can
// classify failures with errors.Is without string matching.
package services
