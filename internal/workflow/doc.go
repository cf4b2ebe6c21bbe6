// Package workflow decodes workflow documents and executes their steps
// against claimed tasks.
package workflow
