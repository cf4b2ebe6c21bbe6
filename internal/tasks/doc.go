// Package tasks defines the task, project, document, and workflow models
// and their SQLite-backed store.
//
// A task tracks progress in two places that the store keeps in lockstep: a
// plain status column used for cheap filtering and claiming, and a
// structured status document recording one entry per executed pipeline
// step. Claiming uses a conditional update so that concurrent workers never
// receive the same task.
package tasks
