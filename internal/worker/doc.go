// Package worker runs the background task loop: reclaim expired leases,
// claim the next pending task, resolve its project's workflow, execute the
// pipeline, and persist the outcome. The loop never exits on task errors,
// only on context cancellation between iterations.
package worker
