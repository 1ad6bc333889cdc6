package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannes/doc-cleanser/src/backend/pii"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

func TestTier(t *testing.T) {
	tests := []struct {
		name  string
		stats pii.Stats
		want  int
	}{
		{"nothing replaced", pii.Stats{}, 0},
		{"unmapped only", pii.Stats{UnmappedEntities: 3}, 0},
		{"dates and places", pii.Stats{Substitutions: 2}, 1},
		{"pattern tokens only", pii.Stats{EmailsReplaced: 1, IPv4Replaced: 1}, 1},
		{"person name", pii.Stats{Substitutions: 1, PersonSubstitutions: 1}, 2},
		{"many replacements", pii.Stats{Substitutions: 6, EmailsReplaced: 4}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tier(tt.stats))
		})
	}
}

func TestApplyStats(t *testing.T) {
	var record DocumentRecord
	record.ApplyStats(pii.Stats{
		EntityCounts:        map[detectors.EntityKind]int{detectors.KindPerson: 2},
		Substitutions:       1,
		PersonSubstitutions: 1,
		EmailsReplaced:      2,
		UnmappedEntities:    1,
	})

	assert.Equal(t, 2, record.EntityCounts[detectors.KindPerson])
	assert.Equal(t, 1, record.Substitutions)
	assert.Equal(t, 2, record.EmailsReplaced)
	assert.Equal(t, 1, record.UnmappedEntities)
	assert.Equal(t, 2, record.Tier)
}

func TestOpen_Drivers(t *testing.T) {
	store, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, store)
	assert.NoError(t, store.RecordDocument(context.Background(), DocumentRecord{}))
	records, err := store.ListRun(context.Background(), "run")
	assert.NoError(t, err)
	assert.Empty(t, records)

	_, err = Open(context.Background(), Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestTimestampScan(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	for _, src := range []interface{}{want, want.Format(time.RFC3339Nano), []byte("2024-05-06 07:08:09")} {
		var ts timestamp
		require.NoError(t, ts.Scan(src))
		assert.True(t, want.Equal(ts.Time), "scan %T", src)
	}

	var ts timestamp
	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(42))
}
