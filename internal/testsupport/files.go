package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates the target path with the given contents, making parent
// directories as needed.
func WriteFile(t testing.TB, path string, contents []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// FileStorageJSON returns the storage location document for a local file.
func FileStorageJSON(t testing.TB, path string) string {
	t.Helper()

	encoded, err := json.Marshal(map[string]string{
		"storage_type":   "file",
		"container_name": "",
		"absolute_path":  path,
	})
	if err != nil {
		t.Fatalf("marshal storage location: %v", err)
	}
	return string(encoded)
}
