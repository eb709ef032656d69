package runlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	id, err := store.StartRun("cpc", "pretrain", map[string]int{"window_size": 60})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, store.RecordEpoch(id, 1, "train", 1.5, -1))
	require.NoError(t, store.RecordEpoch(id, 1, "val", 1.6, -1))
	require.NoError(t, store.RecordEpoch(id, 2, "train", 1.2, -1))
	require.NoError(t, store.FinishRun(id))

	records, err := store.Epochs(id)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[0].Epoch)
	assert.Equal(t, "train", records[0].Split)
	assert.Equal(t, 1.5, records[0].Loss)
	assert.Equal(t, -1.0, records[0].Accuracy, "missing accuracy reads back as -1")
}

func TestRecordEpochOverwrites(t *testing.T) {
	store := openTestStore(t)

	id, err := store.StartRun("tnc", "finetune", nil)
	require.NoError(t, err)

	require.NoError(t, store.RecordEpoch(id, 1, "val", 2.0, 0.4))
	require.NoError(t, store.RecordEpoch(id, 1, "val", 1.8, 0.5))

	records, err := store.Epochs(id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1.8, records[0].Loss)
	assert.Equal(t, 0.5, records[0].Accuracy)
}

func TestRunsReportFinishedState(t *testing.T) {
	store := openTestStore(t)

	open, err := store.StartRun("cpc", "test", nil)
	require.NoError(t, err)
	done, err := store.StartRun("tnc", "pretrain", nil)
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(done))

	records, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, records, 2)
	byID := map[string]RunRecord{records[0].ID: records[0], records[1].ID: records[1]}
	assert.False(t, byID[open].Finished)
	assert.True(t, byID[done].Finished)
	assert.Equal(t, "tnc", byID[done].Model)
}

func TestEpochsOfUnknownRun(t *testing.T) {
	store := openTestStore(t)
	records, err := store.Epochs("no-such-run")
	require.NoError(t, err)
	assert.Empty(t, records)
}
