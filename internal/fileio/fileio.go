// Package fileio holds small filesystem helpers shared by the model caches.
package fileio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyAtomic streams r into path through a temporary sibling file that is
// fsynced and renamed into place, so readers never observe a partial model.
// It returns the number of bytes written.
func CopyAtomic(path string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.part")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	fail := func(err error) (int64, error) {
		f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		return fail(err)
	}
	if err := f.Chmod(mode); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// Exists reports whether path names a regular, non-empty file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}
