package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const partialSuffix = ".part"

// Manager stores media files inside one account directory. A media file is
// only ever visible under its final name once it is completely written.
type Manager struct {
	dir string
}

// NewManager creates a storage manager for dir, creating it when needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the directory managed by m
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the full path of a media file name
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// IsDownloaded reports whether name exists as a non-empty regular file
func (m *Manager) IsDownloaded(name string) bool {
	info, err := os.Stat(m.Path(name))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Save streams r into name. Data goes to a uniquely named partial file first
// and is renamed into place only after a successful copy, sync and close.
// An empty body is an error so an empty file is never promoted.
func (m *Manager) Save(name string, r io.Reader) (int64, error) {
	if name == "" || filepath.Base(name) != name {
		return 0, fmt.Errorf("invalid media file name %q", name)
	}

	out, err := os.CreateTemp(m.dir, name+".*"+partialSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	written, err := io.Copy(out, r)
	if err == nil && written == 0 {
		err = io.ErrUnexpectedEOF
	}
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, m.Path(name)); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return written, nil
}

// CleanupPartials deletes partial files left by an interrupted run
func (m *Manager) CleanupPartials() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
