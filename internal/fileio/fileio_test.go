package fileio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyAtomicWritesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "model.onnx")
	n, err := CopyAtomic(p, bytes.NewReader([]byte("weights")), 0o644)
	if err != nil {
		t.Fatalf("CopyAtomic: %v", err)
	}
	if n != 7 {
		t.Fatalf("bytes: want=7 got=%d", n)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "weights" {
		t.Fatalf("content: want=weights got=%q err=%v", b, err)
	}
	if !Exists(p) {
		t.Fatalf("Exists should report the written file")
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestCopyAtomicCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.onnx")
	if _, err := CopyAtomic(p, failingReader{}, 0o644); err == nil {
		t.Fatalf("expected error from failing reader")
	}
	if Exists(p) {
		t.Fatalf("target must not exist after failed copy")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
}

func TestExistsRejectsEmptyAndDirs(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if Exists(empty) || Exists(dir) || Exists(filepath.Join(dir, "missing")) {
		t.Fatalf("Exists should be false for empty files, dirs and missing paths")
	}
}
