package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"twarchive/pkg/logger"
)

var (
	// ErrSyncInProgress is returned when an account is already being synced, by this process or another one
	ErrSyncInProgress = errors.New("a sync for this account is already in progress")
	// ErrInvalidAccount is returned for handles that cannot be used as a directory name
	ErrInvalidAccount = errors.New("invalid account handle")
)

var accountPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// NormalizeAccount strips a leading @ and lowercases the handle
func NormalizeAccount(handle string) (string, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if !accountPattern.MatchString(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, handle)
	}
	return h, nil
}

// Store owns the manifest file of every account under a base directory.
// Each account lives in its own directory, so accounts never share a file.
type Store struct {
	baseDir      string
	manifestName string
	logger       logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// beforeRename runs after the temp file is durable and before it is
	// promoted. Tests use it to simulate a crash at that point.
	beforeRename func(tmpPath string) error
}

// NewStore creates a store rooted at baseDir
func NewStore(baseDir, manifestName string, log logger.Logger) *Store {
	if manifestName == "" {
		manifestName = "tweets.json"
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		baseDir:      baseDir,
		manifestName: manifestName,
		logger:       log,
		locks:        make(map[string]*sync.Mutex),
	}
}

// BaseDir returns the archive root directory
func (s *Store) BaseDir() string { return s.baseDir }

// AccountDir is the directory holding an account's manifest and media
func (s *Store) AccountDir(account string) string {
	return filepath.Join(s.baseDir, account)
}

// ManifestPath is the canonical manifest location for account
func (s *Store) ManifestPath(account string) string {
	return filepath.Join(s.AccountDir(account), s.manifestName)
}

// Lock claims exclusive ownership of account's manifest within this process.
// It never blocks: a second caller gets ErrSyncInProgress.
func (s *Store) Lock(account string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[account]
	if !ok {
		l = &sync.Mutex{}
		s.locks[account] = l
	}
	s.mu.Unlock()

	if !l.TryLock() {
		return nil, fmt.Errorf("%s: %w", account, ErrSyncInProgress)
	}
	var once sync.Once
	return func() { once.Do(l.Unlock) }, nil
}

// Load reads the manifest of account. A missing manifest yields an empty one.
// Temp files left by an interrupted write are ignored.
func (s *Store) Load(account string) (*Manifest, error) {
	path := s.ManifestPath(account)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(account), nil
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var m Manifest
	if err := json.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	if m.Posts == nil {
		m.Posts = []Post{}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s is inconsistent: %w", path, err)
	}
	if m.Account != account {
		return nil, fmt.Errorf("manifest %s belongs to %q, not %q", path, m.Account, account)
	}

	s.logger.DebugWithFields("Manifest loaded", map[string]interface{}{
		"account":         account,
		"posts":           len(m.Posts),
		"resume_boundary": m.ResumeBoundary,
	})
	return &m, nil
}

// Commit atomically replaces the account's manifest with m: the encoded
// manifest is written and synced to a temp file in the same directory and then
// renamed over the canonical path. Cancellation is checked before the rename.
func (s *Store) Commit(ctx context.Context, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to write inconsistent manifest: %w", err)
	}

	dir := s.AccountDir(m.Account)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create account directory: %w", err)
	}

	file, err := os.CreateTemp(dir, s.manifestName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest: %w", err)
	}
	tmpPath := file.Name()
	promoted := false
	defer func() {
		if !promoted {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("manifest not promoted: %w", err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, s.ManifestPath(m.Account)); err != nil {
		return fmt.Errorf("failed to promote manifest: %w", err)
	}
	promoted = true
	syncDir(dir)

	s.logger.DebugWithFields("Manifest committed", map[string]interface{}{
		"account":         m.Account,
		"posts":           len(m.Posts),
		"resume_boundary": m.ResumeBoundary,
	})
	return nil
}

// syncDir makes the rename durable where the platform supports it
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// CleanupTemp removes manifest temp files left by an interrupted commit
func (s *Store) CleanupTemp(account string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.AccountDir(account), s.manifestName+".*.tmp"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Accounts lists the accounts that have a committed manifest, sorted by name
func (s *Store) Accounts() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var accounts []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.ManifestPath(e.Name())); err == nil {
			accounts = append(accounts, e.Name())
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}
