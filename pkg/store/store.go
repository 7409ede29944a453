// Package store holds the canonical pattern population. It provides
// capacity-bounded mutation, snapshot reads, and a change feed that
// downstream subscribers can watch without blocking writers.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/errors"
	"github.com/jon-gauntlet/aether-sub009/pkg/logging"
)

// DefaultCapacity bounds the population when no capacity is configured.
const DefaultCapacity = 100

// ChangeKind identifies what happened to a pattern.
type ChangeKind int

const (
	Inserted ChangeKind = iota
	Updated
	Evicted
)

// String provides human-readable change kinds.
func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// ChangeEvent carries the affected pattern after a successful mutation.
// The pattern is a snapshot; receivers may retain it freely.
type ChangeEvent struct {
	Kind    ChangeKind
	Pattern *core.Pattern
}

// Stats reports store activity counters.
type Stats struct {
	Inserts   int64
	Updates   int64
	Evictions int64
	Size      int
	Capacity  int
}

// watchBufferSize is the per-subscriber channel buffer. A subscriber that
// falls more than this far behind starts losing events rather than
// blocking mutations.
const watchBufferSize = 64

// Store is the canonical in-memory pattern population.
type Store struct {
	capacity int
	logger   *logging.Logger

	mu       sync.RWMutex
	patterns map[string]*core.Pattern

	watchMu  sync.Mutex
	watchers map[int]chan ChangeEvent
	nextID   int

	inserts   int64
	updates   int64
	evictions int64
}

// New creates a pattern store bounded to the given capacity. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int, logger *logging.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Store{
		capacity: capacity,
		logger:   logger,
		patterns: make(map[string]*core.Pattern),
		watchers: make(map[int]chan ChangeEvent),
	}
}

// Capacity returns the population bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Len returns the current population size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Insert adds a pattern to the population. When the population would
// exceed capacity, the pattern with the lowest composite score is evicted.
// Eviction is an expected side effect, not an error.
func (s *Store) Insert(ctx context.Context, p *core.Pattern) error {
	if err := errors.CheckContext(ctx, "store insert"); err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return errors.New(errors.InvalidInput, "pattern must have an id")
	}

	stored := p.Clone()
	stored.Metrics.Clamp()
	stored.StateVector = stored.StateVector.Clamp()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	var evicted *core.Pattern

	s.mu.Lock()
	s.patterns[stored.ID] = stored
	if len(s.patterns) > s.capacity {
		evicted = s.evictLowest()
	}
	s.mu.Unlock()

	atomic.AddInt64(&s.inserts, 1)
	s.notify(ChangeEvent{Kind: Inserted, Pattern: stored.Clone()})

	if evicted != nil {
		atomic.AddInt64(&s.evictions, 1)
		s.logger.Info(ctx, "evicted pattern %s (score=%.3f) to stay within capacity %d",
			evicted.ID, evicted.CompositeScore(), s.capacity)
		s.notify(ChangeEvent{Kind: Evicted, Pattern: evicted})
	}

	return nil
}

// Update replaces the stored pattern with the given id. The replacement is
// atomic: concurrent readers observe either the old or the new pattern,
// never a partial write.
func (s *Store) Update(ctx context.Context, id string, p *core.Pattern) error {
	if err := errors.CheckContext(ctx, "store update"); err != nil {
		return err
	}
	if p == nil {
		return errors.New(errors.InvalidInput, "pattern must not be nil")
	}

	stored := p.Clone()
	stored.ID = id
	stored.Metrics.Clamp()
	stored.StateVector = stored.StateVector.Clamp()
	stored.UpdatedAt = time.Now()

	s.mu.Lock()
	if _, ok := s.patterns[id]; !ok {
		s.mu.Unlock()
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "pattern not found"),
			errors.Fields{"pattern_id": id},
		)
	}
	s.patterns[id] = stored
	s.mu.Unlock()

	atomic.AddInt64(&s.updates, 1)
	s.notify(ChangeEvent{Kind: Updated, Pattern: stored.Clone()})

	return nil
}

// Get returns a snapshot of the pattern with the given id.
func (s *Store) Get(ctx context.Context, id string) (*core.Pattern, error) {
	if err := errors.CheckContext(ctx, "store get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	p, ok := s.patterns[id]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "pattern not found"),
			errors.Fields{"pattern_id": id},
		)
	}
	return p.Clone(), nil
}

// All returns a snapshot of the current population. Callers may mutate the
// result freely; store state is unaffected.
func (s *Store) All(ctx context.Context) []*core.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	return out
}

// Stats returns activity counters for diagnostics.
func (s *Store) Stats() Stats {
	return Stats{
		Inserts:   atomic.LoadInt64(&s.inserts),
		Updates:   atomic.LoadInt64(&s.updates),
		Evictions: atomic.LoadInt64(&s.evictions),
		Size:      s.Len(),
		Capacity:  s.capacity,
	}
}

// Watch registers a subscriber for change events. The returned cancel
// function unregisters the subscriber and closes the channel. Delivery is
// fire-and-forget: a full buffer drops events instead of blocking writers.
func (s *Store) Watch() (<-chan ChangeEvent, func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan ChangeEvent, watchBufferSize)
	s.watchers[id] = ch
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		if existing, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(existing)
		}
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(event ChangeEvent) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block the mutation path.
		}
	}
}

// evictLowest removes and returns the pattern with the lowest composite
// score. Caller must hold the write lock.
func (s *Store) evictLowest() *core.Pattern {
	var victim *core.Pattern
	for _, p := range s.patterns {
		if victim == nil || p.CompositeScore() < victim.CompositeScore() {
			victim = p
		}
	}
	if victim == nil {
		return nil
	}
	delete(s.patterns, victim.ID)
	return victim
}
