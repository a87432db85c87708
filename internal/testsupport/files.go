package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteVideoFile drops a placeholder video file for tests that only need the
// path to exist; nothing in the fakes ever decodes it.
func WriteVideoFile(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
