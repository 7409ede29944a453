package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jon-gauntlet/aether-sub009/pkg/core"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := NewSQLiteArchive(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchiveRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	p := newTestPattern("p1", 0.8)
	p.History = []core.EvolutionEntry{
		{Timestamp: time.Now().UTC(), Outcome: true, Delta: core.StateVector{0.05, 0, 0}},
	}

	require.NoError(t, a.Record(ctx, ChangeEvent{Kind: Inserted, Pattern: p}))

	loaded, err := a.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "p1", loaded[0].ID)
	assert.Equal(t, p.Signature, loaded[0].Signature)
	assert.InDelta(t, 0.8, loaded[0].Metrics.Fitness, 1e-9)
}

func TestArchiveUpsertsByVersion(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	p := newTestPattern("p1", 0.4)
	require.NoError(t, a.Record(ctx, ChangeEvent{Kind: Inserted, Pattern: p}))

	p2 := newTestPattern("p1", 0.9)
	p2.Version = 2
	require.NoError(t, a.Record(ctx, ChangeEvent{Kind: Updated, Pattern: p2}))

	loaded, err := a.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[0].Version)
}

func TestArchiveEvolutionLogNeverTruncated(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	p := newTestPattern("p1", 0.5)
	for i := 0; i < 5; i++ {
		p.History = append(p.History, core.EvolutionEntry{
			Timestamp: time.Now().UTC(),
			Outcome:   i%2 == 0,
			Delta:     core.StateVector{0.01, 0, 0},
		})
		p.Version++
		require.NoError(t, a.Record(ctx, ChangeEvent{Kind: Updated, Pattern: p}))
	}

	n, err := a.EvolutionLogLen(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestArchiveRejectsNilPattern(t *testing.T) {
	a := newTestArchive(t)
	assert.Error(t, a.Record(context.Background(), ChangeEvent{Kind: Inserted}))
}
