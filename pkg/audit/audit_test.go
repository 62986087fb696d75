package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{DBPath: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)

	store.RecordExec("req-1", "echo hello", "completed", 0, 12*time.Millisecond)
	store.RecordExec("req-2", "rm -rf /", "blocked", -1, 0)
	store.RecordExec("req-3", "sleep 99", "timeout", -1, time.Second)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "req-3", entries[0].RequestID)
	assert.Equal(t, "timeout", entries[0].Verdict)
	assert.Equal(t, "blocked", entries[1].Verdict)
	assert.Equal(t, "req-1", entries[2].RequestID)
	assert.Equal(t, 0, entries[2].ExitCode)
	assert.EqualValues(t, 12, entries[2].DurationMs)
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		store.RecordExec("req", "echo hi", "completed", 0, 0)
	}

	entries, err := store.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSweepDeletesOldEntries(t *testing.T) {
	store, err := Open(Options{
		DBPath:    filepath.Join(t.TempDir(), "audit.db"),
		Retention: time.Hour,
	})
	require.NoError(t, err)
	defer store.Close()

	store.RecordExec("req-new", "echo hi", "completed", 0, 0)

	// Backdate one entry past the retention bound.
	_, err = store.db.Exec(
		`INSERT INTO exec_audit (request_id, command, verdict, exit_code, duration_ms, created_at)
		 VALUES ('req-old', 'echo old', 'completed', 0, 0, ?)`,
		time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	store.Sweep()

	count, err = store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-new", entries[0].RequestID)
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	store.RecordExec("req", "echo hi", "completed", 0, 0) // must not panic
	assert.NoError(t, store.Close())
}

func TestOpenRejectsBadOptions(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := Open(Options{})
		assert.Error(t, err)
	})

	t.Run("invalid sweep schedule", func(t *testing.T) {
		_, err := Open(Options{
			DBPath:        filepath.Join(t.TempDir(), "audit.db"),
			Retention:     time.Hour,
			SweepSchedule: "not a schedule",
		})
		assert.Error(t, err)
	})
}
