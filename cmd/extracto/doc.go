// Package main hosts the extracto CLI entrypoint and command graph.
//
// The Cobra-based command tree covers configuration scaffolding, catalog
// management (workflows, projects, documents), task queueing, and status
// reporting. Commands open the task store directly; the daemon holds no
// state the CLI cannot reach through the database.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
