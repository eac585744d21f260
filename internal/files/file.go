// Package files replaces generated files atomically: content is written to a
// sibling temporary file which is renamed over the destination once complete.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Update writes file through fn. The destination keeps its old content
// unless fn and the commit succeed.
func Update(file string, perm os.FileMode, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(file)+".tmp*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := fn(tmp); err != nil {
		return errors.Join(fmt.Errorf("write %s: %w", file, err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// WriteFile atomically replaces file with data.
func WriteFile(file string, data []byte) error {
	return Update(file, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
