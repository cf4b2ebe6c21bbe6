package objectstore

import (
	"encoding/json"
	"strings"

	"extracto/internal/services"
)

// Location describes where a document's bytes live. It is embedded as JSON
// on document rows by the upload surface.
type Location struct {
	Kind   string `json:"storage_type"`
	Bucket string `json:"container_name"`
	Path   string `json:"absolute_path"`
}

// Known storage kinds.
const (
	KindFile = "file"
	KindS3   = "s3"
	KindBlob = "blob"
)

// ParseLocation decodes a storage location document. An empty or malformed
// document is reported as a not-found condition since the bytes cannot be
// reached.
func ParseLocation(raw string) (Location, error) {
	var loc Location
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return loc, services.Wrap(services.ErrNotFound, "", "parse storage location",
			"document has no storage location", nil)
	}
	if err := json.Unmarshal([]byte(trimmed), &loc); err != nil {
		return loc, services.Wrap(services.ErrNotFound, "", "parse storage location",
			"malformed storage location", err)
	}
	loc.Kind = strings.ToLower(strings.TrimSpace(loc.Kind))
	if loc.Path == "" {
		return loc, services.Wrap(services.ErrNotFound, "", "parse storage location",
			"storage location has no path", nil)
	}
	return loc, nil
}
