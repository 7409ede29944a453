// Package evolver applies outcome feedback to patterns: it recomputes the
// rolling metrics, perturbs the state vector, and decides the next
// lifecycle state.
package evolver

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jon-gauntlet/aether-sub009/pkg/config"
	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/logging"
	"github.com/jon-gauntlet/aether-sub009/pkg/store"
)

// Feedback reports the observed outcome after a caller acted on a pattern,
// together with the state vector measured at that time.
type Feedback struct {
	Outcome     bool
	StateVector core.StateVector
}

// Evolver mutates patterns in response to feedback.
type Evolver struct {
	cfg    *config.EngineConfig
	store  *store.Store
	logger *logging.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures the Evolver.
type Option func(*Evolver)

// WithRand injects a seedable random source so mutation is reproducible
// in tests. The default is time-seeded.
func WithRand(rng *rand.Rand) Option {
	return func(e *Evolver) {
		e.rng = rng
	}
}

// New creates an evolver bound to the given store.
func New(cfg *config.EngineConfig, s *store.Store, logger *logging.Logger, opts ...Option) *Evolver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	e := &Evolver{
		cfg:    cfg,
		store:  s,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evolve applies one feedback cycle to the pattern with the given id and
// persists the result. Protected patterns only accumulate history; their
// state vector and metrics never change.
func (e *Evolver) Evolve(ctx context.Context, id string, fb Feedback) (*core.Pattern, error) {
	p, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	observed := fb.StateVector.Clamp()
	entry := core.EvolutionEntry{
		Timestamp: time.Now(),
		Outcome:   fb.Outcome,
		Delta:     observed.Delta(p.StateVector),
	}
	p.History = append(p.History, entry)

	ctx = logging.WithPatternID(ctx, id)

	if p.Lifecycle == core.Protected {
		// Read-only observation for audit; no mutation, no version bump.
		if err := e.store.Update(ctx, id, p); err != nil {
			return nil, err
		}
		e.logger.Debug(ctx, "recorded observation on protected pattern (history=%d)", len(p.History))
		return p, nil
	}

	window := rollingWindow(p.History, e.cfg.MetricWindow)

	p.Metrics.Fitness = fitness(window)
	p.Metrics.Stability = stability(window)
	p.Metrics.Adaptability = e.adaptability(window)
	p.Metrics.Clamp()

	e.mutate(p)
	p.Lifecycle = e.nextLifecycle(p.Metrics)
	p.Version++

	if err := e.store.Update(ctx, id, p); err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "evolved pattern: fitness=%.3f stability=%.3f adaptability=%.3f lifecycle=%s version=%d",
		p.Metrics.Fitness, p.Metrics.Stability, p.Metrics.Adaptability, p.Lifecycle, p.Version)

	return p, nil
}

// rollingWindow returns the most recent n entries. The full history stays
// on the pattern for audit; only metric computation is windowed.
func rollingWindow(history []core.EvolutionEntry, n int) []core.EvolutionEntry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// fitness is the fraction of successful outcomes in the window. An empty
// window counts as perfect: a pattern is innocent until it fails.
func fitness(window []core.EvolutionEntry) float64 {
	if len(window) == 0 {
		return 1
	}
	var successes int
	for _, entry := range window {
		if entry.Outcome {
			successes++
		}
	}
	return float64(successes) / float64(len(window))
}

// stability is one minus the variance of delta magnitudes, normalized by
// the largest magnitude observed in the window. Fewer than two entries
// give no variance signal, so stability defaults to 1.
func stability(window []core.EvolutionEntry) float64 {
	if len(window) < 2 {
		return 1
	}

	magnitudes := make([]float64, len(window))
	var sum, maxMag float64
	for i, entry := range window {
		m := entry.Delta.Magnitude()
		magnitudes[i] = m
		sum += m
		if m > maxMag {
			maxMag = m
		}
	}

	if maxMag == 0 {
		// No movement at all: perfectly stable.
		return 1
	}

	mean := sum / float64(len(magnitudes))
	var variance float64
	for _, m := range magnitudes {
		variance += math.Pow(m-mean, 2)
	}
	variance /= float64(len(magnitudes))

	return core.Clamp01(1 - variance/maxMag)
}

// adaptability counts recovery transitions (a failure immediately followed
// by a success) relative to the window length. Short windows fall back to
// the configured floor.
func (e *Evolver) adaptability(window []core.EvolutionEntry) float64 {
	if len(window) < 2 {
		return e.cfg.AdaptabilityFloor
	}

	var recoveries int
	for i := 1; i < len(window); i++ {
		if !window[i-1].Outcome && window[i].Outcome {
			recoveries++
		}
	}
	return core.Clamp01(float64(recoveries) / float64(len(window)))
}

// mutate perturbs each axis of the state vector. Poorly performing
// patterns mutate more aggressively; well-performing patterns drift less.
func (e *Evolver) mutate(p *core.Pattern) {
	strength := e.cfg.BaseMutationRate * (1 - p.Metrics.Fitness)
	if strength == 0 {
		return
	}

	e.rngMu.Lock()
	defer e.rngMu.Unlock()

	for i := range p.StateVector {
		perturbation := (e.rng.Float64()*2 - 1) * strength
		p.StateVector[i] = core.Clamp01(p.StateVector[i] + perturbation)
	}
}

// nextLifecycle evaluates the transition rules in priority order; the
// first match wins.
func (e *Evolver) nextLifecycle(m core.Metrics) core.LifecycleState {
	switch {
	case m.Stability >= e.cfg.ProtectedThreshold && m.Fitness >= e.cfg.ProtectedThreshold:
		return core.Protected
	case m.Stability >= e.cfg.StableThreshold && m.Fitness >= e.cfg.StableThreshold:
		return core.Stable
	case m.Stability < e.cfg.UnstableThreshold && m.Fitness < e.cfg.UnstableThreshold:
		return core.Unstable
	default:
		return core.Evolving
	}
}
