// Package engine exposes the pattern evolution engine façade. A Manager
// owns the store, matcher, and evolver, keeps a bounded context history
// for diagnostics, and fans change notifications out to subscribers.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jon-gauntlet/aether-sub009/pkg/config"
	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/errors"
	"github.com/jon-gauntlet/aether-sub009/pkg/evolver"
	"github.com/jon-gauntlet/aether-sub009/pkg/logging"
	"github.com/jon-gauntlet/aether-sub009/pkg/matcher"
	"github.com/jon-gauntlet/aether-sub009/pkg/metrics"
	"github.com/jon-gauntlet/aether-sub009/pkg/store"
)

// Subscriber receives the latest snapshot of a pattern after each mutation.
type Subscriber func(*core.Pattern)

// Manager orchestrates matching and learning over a single pattern store.
type Manager struct {
	cfg     *config.EngineConfig
	logger  *logging.Logger
	store   *store.Store
	matcher *matcher.Matcher
	evolver *evolver.Evolver
	archive store.Archive

	historyMu sync.RWMutex
	history   []core.Context

	subMu  sync.Mutex
	subs   map[int]Subscriber
	nextID int

	events    <-chan store.ChangeEvent
	cancel    func()
	closeOnce sync.Once
	done      chan struct{}
}

// Option configures the Manager.
type Option func(*managerOptions)

type managerOptions struct {
	logger  *logging.Logger
	store   *store.Store
	archive store.Archive
	rng     *rand.Rand
}

// WithLogger sets the logger used by the engine and its collaborators.
func WithLogger(logger *logging.Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithStore injects a pattern store. Useful for isolated stores per test
// case and for warm-starting from an archive.
func WithStore(s *store.Store) Option {
	return func(o *managerOptions) {
		o.store = s
	}
}

// WithArchive attaches an audit archive. Change events are mirrored into
// it on a background goroutine; archive failures are logged, never
// surfaced to engine callers.
func WithArchive(a store.Archive) Option {
	return func(o *managerOptions) {
		o.archive = a
	}
}

// WithRand injects the evolver's random source for reproducible mutation.
func WithRand(rng *rand.Rand) Option {
	return func(o *managerOptions) {
		o.rng = rng
	}
}

// New creates a Manager and starts its notification dispatcher. Call
// Close when done to stop the dispatcher.
func New(cfg *config.EngineConfig, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	s := o.store
	if s == nil {
		s = store.New(cfg.Capacity, logger)
	}

	var evolverOpts []evolver.Option
	if o.rng != nil {
		evolverOpts = append(evolverOpts, evolver.WithRand(o.rng))
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		matcher: matcher.New(cfg, logger),
		evolver: evolver.New(cfg, s, logger, evolverOpts...),
		archive: o.archive,
		subs:    make(map[int]Subscriber),
		done:    make(chan struct{}),
	}

	m.events, m.cancel = s.Watch()
	go m.dispatch()

	return m
}

// Store exposes the underlying pattern store for diagnostics.
func (m *Manager) Store() *store.Store {
	return m.store
}

// PopulationInsights returns diagnostic statistics over the current
// population snapshot.
func (m *Manager) PopulationInsights(ctx context.Context) metrics.PopulationInsights {
	return metrics.Analyze(m.store.All(ctx))
}

// ApplyPattern matches the live context against the population and returns
// the top-ranked pattern, or nil when nothing clears the confidence
// threshold. A nil result is a normal outcome and never mutates the store.
func (m *Manager) ApplyPattern(ctx context.Context, liveCtx core.Context, state core.StateVector) (*core.Pattern, error) {
	if err := errors.CheckContext(ctx, "apply pattern"); err != nil {
		return nil, err
	}

	m.recordContext(liveCtx)

	candidates := m.matcher.Rank(ctx, liveCtx, state, m.store.All(ctx))
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	m.logger.Debug(logging.WithPatternID(ctx, best.Pattern.ID),
		"matched pattern with confidence %.3f (tag=%.3f vector=%.3f)",
		best.Confidence, best.TagScore, best.VectorScore)

	return best.Pattern, nil
}

// RecordLearning feeds an outcome back into the engine. With an empty
// patternID it creates a fresh pattern seeded from the context; otherwise
// it evolves the identified pattern. An unknown non-empty id is an error.
func (m *Manager) RecordLearning(ctx context.Context, patternID string, liveCtx core.Context, outcome bool, state core.StateVector) (*core.Pattern, error) {
	if err := errors.CheckContext(ctx, "record learning"); err != nil {
		return nil, err
	}

	if patternID == "" {
		return m.createPattern(ctx, liveCtx, outcome, state)
	}

	return m.evolver.Evolve(ctx, patternID, evolver.Feedback{
		Outcome:     outcome,
		StateVector: state,
	})
}

// Subscribe registers a callback invoked with the latest pattern snapshot
// after every mutation. The returned function unsubscribes. Delivery is
// asynchronous and fire-and-forget.
func (m *Manager) Subscribe(sub Subscriber) func() {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// ContextHistory returns a read-only snapshot of the recent contexts
// presented to ApplyPattern, oldest first.
func (m *Manager) ContextHistory() []core.Context {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()

	out := make([]core.Context, len(m.history))
	for i, c := range m.history {
		out[i] = c.Clone()
	}
	return out
}

// Close stops the notification dispatcher. The store itself stays usable.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
		if m.archive != nil {
			if err := m.archive.Close(); err != nil {
				m.logger.Warn(context.Background(), "failed to close archive: %v", err)
			}
		}
	})
}

func (m *Manager) createPattern(ctx context.Context, liveCtx core.Context, outcome bool, state core.StateVector) (*core.Pattern, error) {
	tags := core.NormalizeTags(liveCtx.Tags)
	if len(tags) == 0 {
		return nil, errors.New(errors.InvalidSignature, "a new pattern requires at least one context tag")
	}

	fitness := 0.0
	if outcome {
		fitness = 1.0
	}

	now := time.Now()
	p := &core.Pattern{
		ID:          uuid.New().String(),
		Signature:   tags,
		StateVector: state.Clamp(),
		Metrics: core.Metrics{
			Fitness:      fitness,
			Stability:    1,
			Adaptability: m.cfg.AdaptabilityFloor,
		},
		Lifecycle: core.Evolving,
		History: []core.EvolutionEntry{
			{Timestamp: now, Outcome: outcome},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Insert(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info(logging.WithPatternID(ctx, p.ID),
		"created pattern for tags %v (fitness=%.1f)", tags, fitness)

	return p, nil
}

func (m *Manager) recordContext(liveCtx core.Context) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()

	m.history = append(m.history, liveCtx.Clone())
	if len(m.history) > m.cfg.HistoryLimit {
		// FIFO eviction of the oldest entries
		m.history = m.history[len(m.history)-m.cfg.HistoryLimit:]
	}
}

// dispatch drains store change events, mirrors them into the archive when
// one is attached, and invokes subscribers. It exits when the store watch
// is canceled.
func (m *Manager) dispatch() {
	defer close(m.done)

	for event := range m.events {
		if m.archive != nil {
			if err := m.archive.Record(context.Background(), event); err != nil {
				m.logger.Warn(context.Background(), "archive record failed: %v", err)
			}
		}

		if event.Kind == store.Evicted {
			continue
		}

		m.subMu.Lock()
		subs := make([]Subscriber, 0, len(m.subs))
		for _, sub := range m.subs {
			subs = append(subs, sub)
		}
		m.subMu.Unlock()

		for _, sub := range subs {
			sub(event.Pattern)
		}
	}
}
