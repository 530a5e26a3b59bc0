package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twarchive/pkg/archive"
)

func TestManager(t *testing.T) {
	t.Run("BeginWithoutStaleMarker", func(t *testing.T) {
		mgr, err := NewManager(t.TempDir(), nil)
		require.NoError(t, err)

		current, stale, err := mgr.Begin("alice")
		require.NoError(t, err)
		assert.Nil(t, stale)
		assert.Equal(t, "alice", current.Account)
		assert.NotEmpty(t, current.RunID)
		assert.Equal(t, os.Getpid(), current.PID)

		loaded, err := mgr.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, current.RunID, loaded.RunID)
	})

	t.Run("EndRemovesMarker", func(t *testing.T) {
		mgr, err := NewManager(t.TempDir(), nil)
		require.NoError(t, err)

		current, _, err := mgr.Begin("alice")
		require.NoError(t, err)
		require.NoError(t, mgr.End(current))

		_, err = os.Stat(mgr.Path())
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("StaleMarkerReported", func(t *testing.T) {
		dir := t.TempDir()
		mgr, err := NewManager(dir, nil)
		require.NoError(t, err)

		crashed, _, err := mgr.Begin("alice")
		require.NoError(t, err)
		mgr.alive = func(int) bool { return false }

		current, stale, err := mgr.Begin("alice")
		require.NoError(t, err)
		require.NotNil(t, stale)
		assert.Equal(t, crashed.RunID, stale.RunID)
		assert.NotEqual(t, crashed.RunID, current.RunID)
	})

	t.Run("LiveMarkerRefused", func(t *testing.T) {
		mgr, err := NewManager(t.TempDir(), nil)
		require.NoError(t, err)

		running, _, err := mgr.Begin("alice")
		require.NoError(t, err)

		other, err := NewManager(filepath.Dir(mgr.Path()), nil)
		require.NoError(t, err)
		current, stale, err := other.Begin("alice")
		assert.ErrorIs(t, err, archive.ErrSyncInProgress)
		assert.Nil(t, current)
		assert.Nil(t, stale)

		loaded, err := mgr.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, running.RunID, loaded.RunID, "the running sync keeps its marker")
	})

	t.Run("OldMarkerReclaimed", func(t *testing.T) {
		dir := t.TempDir()
		writeMarker(t, dir, Marker{RunID: "old", Account: "alice", PID: os.Getpid(), StartedAt: time.Now().Add(-7 * time.Hour)})
		mgr, err := NewManager(dir, nil)
		require.NoError(t, err)

		_, stale, err := mgr.Begin("alice")
		require.NoError(t, err)
		require.NotNil(t, stale)
		assert.Equal(t, "old", stale.RunID)
	})

	t.Run("ForeignHostMarkerHeldUntilStale", func(t *testing.T) {
		dir := t.TempDir()
		writeMarker(t, dir, Marker{RunID: "nas", Account: "alice", PID: 1, Host: "some-other-host", StartedAt: time.Now().Add(-time.Hour)})
		mgr, err := NewManager(dir, nil)
		require.NoError(t, err)
		mgr.alive = func(int) bool { return false }

		_, _, err = mgr.Begin("alice")
		assert.ErrorIs(t, err, archive.ErrSyncInProgress)

		mgr.StaleAfter = 30 * time.Minute
		_, stale, err := mgr.Begin("alice")
		require.NoError(t, err)
		require.NotNil(t, stale)
		assert.Equal(t, "nas", stale.RunID)
	})

	t.Run("EndIgnoresForeignRun", func(t *testing.T) {
		mgr, err := NewManager(t.TempDir(), nil)
		require.NoError(t, err)

		first, _, err := mgr.Begin("alice")
		require.NoError(t, err)
		mgr.alive = func(int) bool { return false }
		second, _, err := mgr.Begin("alice")
		require.NoError(t, err)

		require.NoError(t, mgr.End(first))
		loaded, err := mgr.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, second.RunID, loaded.RunID)
	})

	t.Run("CorruptMarkerTreatedAsStale", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))
		mgr, err := NewManager(dir, nil)
		require.NoError(t, err)

		current, stale, err := mgr.Begin("alice")
		require.NoError(t, err)
		assert.NotNil(t, stale)
		assert.NotNil(t, current)
	})

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		dir := t.TempDir()
		mgr, err := NewManager(dir, nil)
		require.NoError(t, err)
		_, _, err = mgr.Begin("alice")
		require.NoError(t, err)

		matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func writeMarker(t *testing.T, dir string, m Marker) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0644))
}
