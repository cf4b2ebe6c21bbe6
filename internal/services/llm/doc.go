// Package llm provides the chat completion client used by the extraction
// and summarization steps, plus tolerant JSON decoding for model output.
package llm
