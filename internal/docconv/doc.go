// Package docconv turns uploaded document bytes into plain text for the
// language model steps. Content types are sniffed from the bytes, never
// trusted from file names.
package docconv
