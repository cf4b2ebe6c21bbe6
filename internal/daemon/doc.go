// Package daemon wires the task store and worker loop behind a
// single-instance file lock and exposes a runtime status snapshot.
package daemon
