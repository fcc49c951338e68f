package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoSnapshot is returned by a Backend when nothing is stored under a name.
var ErrNoSnapshot = errors.New("no snapshot")

// Backend persists encoded snapshots by name.
type Backend interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Remove(name string) error
}

// FileBackend stores each snapshot as <Dir>/<name>.json.
type FileBackend struct {
	Dir string
}

// Path returns the file used for name.
func (b FileBackend) Path(name string) string {
	return filepath.Join(b.Dir, name+".json")
}

// Read returns the stored bytes, or ErrNoSnapshot if the file does not exist.
func (b FileBackend) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(b.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	return data, err
}

// Write replaces the snapshot atomically: the data goes to a temp file in
// the same directory which is then renamed over the target.
func (b FileBackend) Write(name string, data []byte) error {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(b.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.Path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Remove deletes the snapshot. Removing a missing snapshot is not an error.
func (b FileBackend) Remove(name string) error {
	err := os.Remove(b.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
