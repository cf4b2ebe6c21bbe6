// Package pipeline implements the four document-processing steps: ingest
// resolves documents to storage handles, parse converts them to text,
// extract pulls schema-guided JSON out of the text, and summarize produces
// per-level summaries. Each step records its own start, completion, or
// failure through a StepReporter so task progress is always persisted.
package pipeline
