package engine

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jon-gauntlet/aether-sub009/pkg/config"
	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/errors"
	"github.com/jon-gauntlet/aether-sub009/pkg/store"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append(opts, WithRand(rand.New(rand.NewSource(1))))
	m := New(config.DefaultConfig(), opts...)
	t.Cleanup(m.Close)
	return m
}

func TestApplyPatternEmptyStore(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	got, err := m.ApplyPattern(ctx, core.Context{Tags: []string{"focus"}}, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.Nil(t, got, "no stored patterns means no match")
}

func TestApplyPatternNoMatchIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	liveCtx := core.Context{Tags: []string{"focus"}}
	state := core.StateVector{0.5, 0.5, 0.5}

	first, err := m.ApplyPattern(ctx, liveCtx, state)
	require.NoError(t, err)
	second, err := m.ApplyPattern(ctx, liveCtx, state)
	require.NoError(t, err)

	assert.Nil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, 0, m.Store().Len(), "no-match must not mutate the store")
}

func TestRecordLearningCreatesPattern(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	p, err := m.RecordLearning(ctx, "", core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, []string{"focus"}, p.Signature)
	assert.Equal(t, 1.0, p.Metrics.Fitness)
	assert.Equal(t, core.Evolving, p.Lifecycle)
	assert.Len(t, p.History, 1)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, 1, m.Store().Len())
}

func TestRecordLearningFailedOutcomeSeedsZeroFitness(t *testing.T) {
	m := newTestManager(t)

	p, err := m.RecordLearning(context.Background(), "", core.Context{Tags: []string{"focus"}}, false, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Metrics.Fitness)
}

func TestRecordLearningEmptyTagsRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RecordLearning(context.Background(), "", core.Context{}, true, core.StateVector{0.5, 0.5, 0.5})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidSignature(err))
	assert.Equal(t, 0, m.Store().Len(), "no pattern may be created without a signature")
}

func TestRecordLearningUnknownIDFails(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RecordLearning(context.Background(), "nonexistent-id", core.Context{Tags: []string{"x"}}, false, core.StateVector{0.5, 0.5, 0.5})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRecordLearningEvolvesExisting(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	liveCtx := core.Context{Tags: []string{"focus"}}

	p, err := m.RecordLearning(ctx, "", liveCtx, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	evolved, err := m.RecordLearning(ctx, p.ID, liveCtx, true, core.StateVector{0.55, 0.5, 0.5})
	require.NoError(t, err)

	assert.Equal(t, p.ID, evolved.ID)
	assert.Len(t, evolved.History, 2)
}

// TestLearnThenMatch walks the full loop: create, reinforce to PROTECTED,
// then match with the protected bonus applied.
func TestLearnThenMatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	liveCtx := core.Context{Tags: []string{"focus"}}

	p, err := m.RecordLearning(ctx, "", liveCtx, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	var latest *core.Pattern
	for i := 0; i < 4; i++ {
		latest, err = m.RecordLearning(ctx, p.ID, liveCtx, true, core.StateVector{0.55, 0.5, 0.5})
		require.NoError(t, err)
	}

	assert.InDelta(t, 1.0, latest.Metrics.Fitness, 1e-9)
	assert.Equal(t, core.Protected, latest.Lifecycle)

	frozen := latest.StateVector
	again, err := m.RecordLearning(ctx, p.ID, liveCtx, true, core.StateVector{0.9, 0.9, 0.9})
	require.NoError(t, err)
	assert.Equal(t, frozen, again.StateVector, "protected patterns stop changing")

	matched, err := m.ApplyPattern(ctx, liveCtx, core.StateVector{0.55, 0.5, 0.5})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, p.ID, matched.ID)
}

func TestContextHistoryBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HistoryLimit = 5
	m := New(cfg, WithRand(rand.New(rand.NewSource(1))))
	t.Cleanup(m.Close)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := m.ApplyPattern(ctx, core.Context{Tags: []string{fmt.Sprintf("t%d", i)}}, core.StateVector{0.5, 0.5, 0.5})
		require.NoError(t, err)
	}

	history := m.ContextHistory()
	require.Len(t, history, 5)
	// FIFO eviction keeps the most recent entries, oldest first
	assert.Equal(t, []string{"t7"}, history[0].Tags)
	assert.Equal(t, []string{"t11"}, history[4].Tags)
}

func TestContextHistoryIsSnapshot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyPattern(ctx, core.Context{Tags: []string{"focus"}}, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	history := m.ContextHistory()
	require.Len(t, history, 1)
	history[0].Tags[0] = "tampered"

	assert.Equal(t, []string{"focus"}, m.ContextHistory()[0].Tags)
}

func TestSubscribeReceivesMutations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	received := make(chan *core.Pattern, 8)
	unsubscribe := m.Subscribe(func(p *core.Pattern) {
		received <- p
	})
	defer unsubscribe()

	p, err := m.RecordLearning(ctx, "", core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, p.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the insert notification")
	}

	_, err = m.RecordLearning(ctx, p.ID, core.Context{Tags: []string{"focus"}}, false, core.StateVector{0.4, 0.5, 0.5})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, 2, got.Version)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the update notification")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	received := make(chan *core.Pattern, 8)
	unsubscribe := m.Subscribe(func(p *core.Pattern) {
		received <- p
	})
	unsubscribe()

	_, err := m.RecordLearning(ctx, "", core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("unsubscribed callback should not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestArchiveMirrorsChanges(t *testing.T) {
	archive, err := store.NewSQLiteArchive(":memory:")
	require.NoError(t, err)

	m := New(config.DefaultConfig(),
		WithRand(rand.New(rand.NewSource(1))),
		WithArchive(archive),
	)
	ctx := context.Background()

	p, err := m.RecordLearning(ctx, "", core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)
	_, err = m.RecordLearning(ctx, p.ID, core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.55, 0.5, 0.5})
	require.NoError(t, err)

	// Close waits for the dispatcher to drain before closing the archive;
	// reopen a handle is not needed since :memory: lives with the manager,
	// so check before Close.
	require.Eventually(t, func() bool {
		loaded, err := archive.LoadAll(ctx)
		return err == nil && len(loaded) == 1 && loaded[0].Version == 2
	}, 2*time.Second, 10*time.Millisecond)

	m.Close()
}

func TestPopulationInsights(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.RecordLearning(ctx, "", core.Context{Tags: []string{"focus"}}, true, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)
	_, err = m.RecordLearning(ctx, "", core.Context{Tags: []string{"rest"}}, false, core.StateVector{0.2, 0.2, 0.2})
	require.NoError(t, err)

	insights := m.PopulationInsights(ctx)
	assert.Equal(t, 2, insights.Size)
	assert.InDelta(t, 0.5, insights.AverageFitness, 1e-9)
	assert.InDelta(t, 1.0, insights.BestFitness, 1e-9)
	assert.Equal(t, 2, insights.LifecycleCounts["EVOLVING"])
}

func TestWarmStartFromArchive(t *testing.T) {
	archive, err := store.NewSQLiteArchive(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	ctx := context.Background()

	p := &core.Pattern{
		ID:          "warm",
		Signature:   []string{"focus"},
		StateVector: core.StateVector{0.5, 0.5, 0.5},
		Metrics:     core.Metrics{Fitness: 0.9, Stability: 0.9, Adaptability: 0.6},
		Lifecycle:   core.Stable,
		Version:     4,
	}
	require.NoError(t, archive.Record(ctx, store.ChangeEvent{Kind: store.Inserted, Pattern: p}))

	loaded, err := archive.LoadAll(ctx)
	require.NoError(t, err)

	s := store.New(100, nil)
	for _, lp := range loaded {
		require.NoError(t, s.Insert(ctx, lp))
	}

	m := New(config.DefaultConfig(), WithStore(s), WithRand(rand.New(rand.NewSource(1))))
	t.Cleanup(m.Close)

	matched, err := m.ApplyPattern(ctx, core.Context{Tags: []string{"focus"}}, core.StateVector{0.5, 0.5, 0.5})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, "warm", matched.ID)
}
