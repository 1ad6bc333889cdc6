package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// newTestStore creates a temporary SQLite database for testing.
// The database file is automatically cleaned up when the test finishes.
func newTestStore(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(context.Background(), Config{Driver: DriverSQLite, Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	store, err := NewSQLiteStore(context.Background(), Config{Path: dbPath})
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []DocumentRecord{
		{
			ID: "doc-1", RunID: "run-1", FileName: "a.txt", FileType: ".txt", Status: StatusProcessed,
			EntityCounts:  map[detectors.EntityKind]int{detectors.KindPerson: 2, detectors.KindOther: 1},
			Substitutions: 2, EmailsReplaced: 1, UnmappedEntities: 1, Tier: 2,
			ProcessedAt: base,
		},
		{
			ID: "doc-2", RunID: "run-1", FileName: "b.md", FileType: ".md", Status: StatusSkipped,
			Reason: "detection_failure", ProcessedAt: base.Add(time.Second),
		},
		{
			ID: "doc-3", RunID: "run-2", FileName: "c.txt", FileType: ".txt", Status: StatusProcessed,
			ProcessedAt: base,
		},
	}
	for _, r := range records {
		require.NoError(t, store.RecordDocument(ctx, r))
	}

	got, err := store.ListRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "doc-1", got[0].ID)
	assert.Equal(t, StatusProcessed, got[0].Status)
	assert.Equal(t, 2, got[0].EntityCounts[detectors.KindPerson])
	assert.Equal(t, 1, got[0].EntityCounts[detectors.KindOther])
	assert.Equal(t, 2, got[0].Tier)
	assert.True(t, base.Equal(got[0].ProcessedAt))

	assert.Equal(t, StatusSkipped, got[1].Status)
	assert.Equal(t, "detection_failure", got[1].Reason)
	assert.Empty(t, got[1].EntityCounts)
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record := DocumentRecord{ID: "doc-1", RunID: "run", FileName: "a", FileType: ".txt", Status: StatusProcessed, ProcessedAt: time.Now()}

	require.NoError(t, store.RecordDocument(ctx, record))
	assert.ErrorContains(t, store.RecordDocument(ctx, record), "failed to insert document record")
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, Config{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, store.RecordDocument(ctx, DocumentRecord{ID: "x", RunID: "r", FileName: "f", FileType: ".txt", Status: StatusProcessed, ProcessedAt: time.Now()}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(ctx, Config{Path: dbPath})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.ListRun(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
