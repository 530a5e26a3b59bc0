package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"twarchive/pkg/archive"
	"twarchive/pkg/logger"
)

// FileName is the marker written into an account directory while it syncs
const FileName = ".sync-session.json"

// DefaultStaleAfter is how long a marker is trusted when its process cannot be checked
const DefaultStaleAfter = 6 * time.Hour

// Marker records a sync that is in progress for one account
type Marker struct {
	RunID     string    `json:"run_id"`
	Account   string    `json:"account"`
	PID       int       `json:"pid"`
	Host      string    `json:"host,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Version   int       `json:"version"`
}

// Age returns how long ago the marked run started
func (m *Marker) Age() time.Duration {
	return time.Since(m.StartedAt)
}

// Manager handles session markers inside one account directory
type Manager struct {
	// StaleAfter bounds how long a marker can hold an account. Older markers
	// are reclaimed even if a process with the same PID is running.
	StaleAfter time.Duration

	markerPath string
	host       string
	alive      func(pid int) bool
	logger     logger.Logger
}

// NewManager creates a session manager for the given account directory
func NewManager(accountDir string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(accountDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create account directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	host, _ := os.Hostname()

	return &Manager{
		StaleAfter: DefaultStaleAfter,
		markerPath: filepath.Join(accountDir, FileName),
		host:       host,
		alive:      processAlive,
		logger:     log,
	}, nil
}

// Path returns the marker location
func (m *Manager) Path() string {
	return m.markerPath
}

// Load reads the current marker. A missing marker returns nil, nil.
func (m *Manager) Load() (*Marker, error) {
	file, err := os.Open(m.markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session marker: %w", err)
	}
	defer file.Close()

	var marker Marker
	if err := json.NewDecoder(file).Decode(&marker); err != nil {
		return nil, fmt.Errorf("failed to decode session marker: %w", err)
	}
	return &marker, nil
}

// Active reports whether marker belongs to a sync that may still be running.
// A marker from this host is active while its process lives; a marker from
// another host is active until StaleAfter has passed.
func (m *Manager) Active(marker *Marker) bool {
	if marker == nil {
		return false
	}
	if m.StaleAfter > 0 && marker.Age() > m.StaleAfter {
		return false
	}
	if marker.Host != "" && marker.Host != m.host {
		return true
	}
	return marker.PID > 0 && m.alive(marker.PID)
}

// Begin claims the account for a new run. The marker is published with a
// hard link so only one process can create it. A marker of a sync that is
// still running fails with archive.ErrSyncInProgress; one left behind by a
// run that never finished is returned as stale and replaced, and an
// unreadable marker is treated the same way.
func (m *Manager) Begin(account string) (current, stale *Marker, err error) {
	current = &Marker{
		RunID:     uuid.NewString(),
		Account:   account,
		PID:       os.Getpid(),
		Host:      m.host,
		StartedAt: time.Now().UTC(),
		Version:   1,
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := m.create(current)
		if err == nil {
			m.logger.DebugWithFields("Session started", map[string]interface{}{
				"account": account,
				"run_id":  current.RunID,
			})
			return current, stale, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, stale, err
		}

		existing, err := m.Load()
		if err != nil {
			m.logger.WarnWithFields("Discarding unreadable session marker", map[string]interface{}{
				"path":  m.markerPath,
				"error": err.Error(),
			})
			existing = &Marker{Account: account}
		}
		if existing == nil {
			continue
		}
		if m.Active(existing) {
			return nil, nil, fmt.Errorf("@%s: run %s (pid %d) started at %s: %w",
				account, existing.RunID, existing.PID, existing.StartedAt.Format(time.RFC3339), archive.ErrSyncInProgress)
		}

		m.logger.WarnWithFields("Previous sync did not finish cleanly", map[string]interface{}{
			"account":    account,
			"run_id":     existing.RunID,
			"pid":        existing.PID,
			"started_at": existing.StartedAt,
		})
		stale = existing
		if err := m.remove(existing.RunID); err != nil {
			return nil, stale, err
		}
	}
	return nil, stale, fmt.Errorf("@%s: could not claim session marker: %w", account, archive.ErrSyncInProgress)
}

// End removes the marker, but only if it still belongs to the given run
func (m *Manager) End(marker *Marker) error {
	existing, err := m.Load()
	if err != nil {
		return err
	}
	if existing == nil || marker == nil || existing.RunID != marker.RunID {
		return nil
	}

	if err := os.Remove(m.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session marker: %w", err)
	}
	m.logger.DebugWithFields("Session finished", map[string]interface{}{
		"account": marker.Account,
		"run_id":  marker.RunID,
	})
	return nil
}

// create writes the marker to a temp file and links it into place, so the
// marker is never visible half written and an existing one is never replaced.
// Filesystems without hard links fall back to an exclusive create.
func (m *Manager) create(marker *Marker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session marker: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(m.markerPath), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tempPath := file.Name()
	defer os.Remove(tempPath)

	if err := writeAndClose(file, data); err != nil {
		return err
	}

	err = os.Link(tempPath, m.markerPath)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return err
	}

	m.logger.DebugWithFields("Hard links unavailable, creating marker exclusively", map[string]interface{}{
		"error": err.Error(),
	})
	file, err = os.OpenFile(m.markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("failed to create session marker: %w", err)
	}
	return writeAndClose(file, data)
}

func writeAndClose(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	return nil
}

// remove deletes the marker if it still carries runID
func (m *Manager) remove(runID string) error {
	existing, err := m.Load()
	if err == nil && existing != nil && existing.RunID != runID {
		return nil
	}
	if err := os.Remove(m.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session marker: %w", err)
	}
	return nil
}
