// Package matcher ranks stored patterns against a live operating context.
// Absence of a match is a normal outcome, never an error.
package matcher

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/jon-gauntlet/aether-sub009/pkg/config"
	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/logging"
)

// concurrentScoringCutoff is the population size above which scoring fans
// out across goroutines. Below it the goroutine overhead isn't worth it.
const concurrentScoringCutoff = 32

// Candidate pairs a pattern with the scores that ranked it.
type Candidate struct {
	Pattern     *core.Pattern
	Confidence  float64
	TagScore    float64
	VectorScore float64
}

// Matcher scores and ranks patterns.
type Matcher struct {
	cfg    *config.EngineConfig
	logger *logging.Logger
}

// New creates a matcher with the given configuration.
func New(cfg *config.EngineConfig, logger *logging.Logger) *Matcher {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Matcher{cfg: cfg, logger: logger}
}

// Rank scores every matchable pattern against the live context and state
// vector, discards candidates below the confidence threshold, and returns
// the rest ordered best-first. Ties break toward higher fitness, then
// toward lower version (older, more-tested patterns win).
func (m *Matcher) Rank(ctx context.Context, liveCtx core.Context, state core.StateVector, patterns []*core.Pattern) []Candidate {
	if len(patterns) == 0 {
		return nil
	}

	tags := core.NormalizeTags(liveCtx.Tags)
	state = state.Clamp()

	scored := make([]Candidate, len(patterns))
	if len(patterns) > concurrentScoringCutoff {
		p := pool.New().WithMaxGoroutines(m.cfg.ConcurrencyLevel)
		for i, pattern := range patterns {
			i, pattern := i, pattern
			p.Go(func() {
				scored[i] = m.score(pattern, tags, state)
			})
		}
		p.Wait()
	} else {
		for i, pattern := range patterns {
			scored[i] = m.score(pattern, tags, state)
		}
	}

	candidates := make([]Candidate, 0, len(scored))
	for _, c := range scored {
		if c.Pattern == nil {
			continue
		}
		if c.Confidence < m.cfg.MatchThreshold {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Pattern.Metrics.Fitness != b.Pattern.Metrics.Fitness {
			return a.Pattern.Metrics.Fitness > b.Pattern.Metrics.Fitness
		}
		return a.Pattern.Version < b.Pattern.Version
	})

	if len(candidates) == 0 {
		m.logger.Debug(ctx, "no pattern cleared threshold %.2f for tags %v",
			m.cfg.MatchThreshold, tags)
	}

	return candidates
}

// score computes a single pattern's confidence. Patterns without a
// signature are never matchable and yield a zeroed candidate.
func (m *Matcher) score(p *core.Pattern, tags []string, state core.StateVector) Candidate {
	if p == nil || !p.Matchable() {
		return Candidate{}
	}

	tagScore := TagOverlap(p.Signature, tags)
	vectorScore := 1 - p.StateVector.Distance(state)

	bonus := 0.0
	switch p.Lifecycle {
	case core.Protected:
		bonus = m.cfg.ProtectedBonus
	case core.Stable:
		bonus = m.cfg.StableBonus
	}

	confidence := core.Clamp01(m.cfg.TagWeight*tagScore + m.cfg.VectorWeight*vectorScore + bonus)

	return Candidate{
		Pattern:     p,
		Confidence:  confidence,
		TagScore:    tagScore,
		VectorScore: vectorScore,
	}
}

// TagOverlap computes the Jaccard-style overlap between a signature and a
// tag set: |intersection| / max(|signature|, |tags|). Two empty sets count
// as a perfect overlap.
func TagOverlap(signature, tags []string) float64 {
	if len(signature) == 0 && len(tags) == 0 {
		return 1
	}
	if len(signature) == 0 || len(tags) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(signature))
	for _, s := range signature {
		set[s] = struct{}{}
	}

	var shared int
	for _, tag := range tags {
		if _, ok := set[tag]; ok {
			shared++
		}
	}

	denom := len(signature)
	if len(tags) > denom {
		denom = len(tags)
	}
	return float64(shared) / float64(denom)
}
