// Package fileio writes files that readers never observe half-written.
package fileio

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic replaces path with data. The bytes go to a uniquely named
// sibling first and are renamed over path only after they reach the disk, so
// concurrent writers of the same path cannot interleave and a crash leaves
// either the old contents or the new. Missing parents are created with
// dirMode; the file ends up with mode regardless of the umask.
func WriteAtomic(path string, data []byte, mode, dirMode os.FileMode) (err error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("fileio: create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("fileio: temp for %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("fileio: write %s: %w", path, err)
	}
	if err = f.Chmod(mode); err != nil {
		return fmt.Errorf("fileio: chmod %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("fileio: sync %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("fileio: close %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fileio: rename into %s: %w", path, err)
	}
	return nil
}
