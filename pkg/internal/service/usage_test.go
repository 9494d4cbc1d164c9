package service

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCalculateDirectorySize(t *testing.T) {
	root := t.TempDir()

	writeTestFile(t, filepath.Join(root, "a.bin"), 100)
	writeTestFile(t, filepath.Join(root, "sub", "b.bin"), 250)
	writeTestFile(t, filepath.Join(root, "sub", "deep", "c.bin"), 7)

	if got := CalculateDirectorySize(root); got != 357 {
		t.Errorf("CalculateDirectorySize = %d, want 357", got)
	}
}

func TestCalculateDirectorySizeMissingRoot(t *testing.T) {
	if got := CalculateDirectorySize(filepath.Join(t.TempDir(), "nope")); got != 0 {
		t.Errorf("missing root should yield 0, got %d", got)
	}
}

func TestCalculateDirectorySizeSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.bin")
	writeTestFile(t, path, 64)

	if got := CalculateDirectorySize(path); got != 64 {
		t.Errorf("file root should yield its size, got %d", got)
	}
}
