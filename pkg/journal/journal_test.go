package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAppendAndRecent tests sequence assignment and newest-first reads
func TestAppendAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	now := time.Now()
	for i := 0; i < 3; i++ {
		seq, err := j.Append(Record{
			WorkerID:   "worker-1",
			AcquiredAt: now,
			ReleasedAt: now.Add(10 * time.Millisecond),
			Held:       10 * time.Millisecond,
			Bytes:      i + 1,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq, "sequence must be monotonic")
	}

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// newest first
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, uint64(2), recent[1].Seq)
	assert.Equal(t, 3, recent[0].Bytes)
	assert.Equal(t, "worker-1", recent[0].WorkerID)
}

// TestRecentMoreThanStored tests asking for more records than exist
func TestRecentMoreThanStored(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Append(Record{WorkerID: "worker-1"})
	require.NoError(t, err)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

// TestReopen tests that records and the sequence survive a reopen
func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(Record{WorkerID: "worker-1"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	seq, err := j.Append(Record{WorkerID: "worker-2"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
