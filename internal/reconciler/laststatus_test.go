package reconciler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastSyncStatus_RoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)

	result := Result{Downloaded: 2, Uploaded: 1}
	require.NoError(t, WriteLastSyncStatus(ws, "startup", result))

	got, err := ReadLastSyncStatus(ws)
	require.NoError(t, err)
	assert.Equal(t, "startup", got.Reason)
	assert.Equal(t, Summary(result), got.Summary)
	assert.WithinDuration(t, time.Now(), got.Timestamp, 5*time.Second)
}

func TestReadLastSyncStatus_MissingFileErrors(t *testing.T) {
	ws := newTestWorkspace(t)
	_, err := ReadLastSyncStatus(ws)
	assert.Error(t, err)
}

func TestLogStaleConflicts_FlagsOnlyConflictsOlderThanPairedFile(t *testing.T) {
	ws := newTestWorkspace(t)

	stalePaired := filepath.Join(ws.Root, "stale.md")
	staleConflict := filepath.Join(ws.Root, "stale.remote.md")
	require.NoError(t, os.WriteFile(staleConflict, []byte("old conflict"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(stalePaired, []byte("resolved by hand"), 0o644))

	freshPaired := filepath.Join(ws.Root, "fresh.md")
	freshConflict := filepath.Join(ws.Root, "fresh.remote.md")
	require.NoError(t, os.WriteFile(freshPaired, []byte("original"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(freshConflict, []byte("still unresolved"), 0o644))

	n, err := LogStaleConflicts(ws)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.FileExists(t, staleConflict)
	assert.FileExists(t, freshConflict)
}
