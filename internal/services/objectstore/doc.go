// Package objectstore resolves document storage locations and reads their
// bytes, from the local filesystem or a MinIO-compatible object store.
package objectstore
