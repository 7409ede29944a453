package core

import (
	"time"
)

// LifecycleState governs whether a pattern is still eligible for mutation.
type LifecycleState int

const (
	Evolving LifecycleState = iota
	Stable
	Protected
	Unstable
)

// String provides human-readable lifecycle states.
func (s LifecycleState) String() string {
	switch s {
	case Evolving:
		return "EVOLVING"
	case Stable:
		return "STABLE"
	case Protected:
		return "PROTECTED"
	case Unstable:
		return "UNSTABLE"
	default:
		return "UNKNOWN"
	}
}

// ParseLifecycleState converts a string to a LifecycleState.
// Returns Evolving for unknown strings.
func ParseLifecycleState(s string) LifecycleState {
	switch s {
	case "STABLE":
		return Stable
	case "PROTECTED":
		return Protected
	case "UNSTABLE":
		return Unstable
	default:
		return Evolving
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LifecycleState) UnmarshalText(text []byte) error {
	*s = ParseLifecycleState(string(text))
	return nil
}

// Metrics holds the derived scalars tracked per pattern. All values are
// kept within [0,1].
type Metrics struct {
	Fitness      float64 `json:"fitness"`      // Rolling success rate
	Stability    float64 `json:"stability"`    // Inverse variance of state deltas
	Adaptability float64 `json:"adaptability"` // Recovery-after-failure rate
}

// Clamp bounds every metric to [0,1] in place.
func (m *Metrics) Clamp() {
	m.Fitness = Clamp01(m.Fitness)
	m.Stability = Clamp01(m.Stability)
	m.Adaptability = Clamp01(m.Adaptability)
}

// EvolutionEntry records one feedback observation.
type EvolutionEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Outcome   bool        `json:"outcome"`
	Delta     StateVector `json:"delta"`
}

// Pattern is the unit of learned behavior: a context signature paired with
// a recommended operating state and the feedback history that shaped it.
type Pattern struct {
	ID          string           `json:"id"`
	Signature   []string         `json:"signature"`
	StateVector StateVector      `json:"state_vector"`
	Metrics     Metrics          `json:"metrics"`
	Lifecycle   LifecycleState   `json:"lifecycle"`
	History     []EvolutionEntry `json:"history"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CompositeScore aggregates the pattern's metrics into the single ranking
// score used for capacity eviction.
func (p *Pattern) CompositeScore() float64 {
	return 0.4*p.Metrics.Fitness + 0.3*p.Metrics.Stability + 0.3*p.Metrics.Adaptability
}

// Clone returns a deep copy so store snapshots never alias live state.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Signature = append([]string(nil), p.Signature...)
	cp.History = append([]EvolutionEntry(nil), p.History...)
	return &cp
}

// Matchable reports whether the pattern is eligible for ranking. Patterns
// without a signature can never match a context.
func (p *Pattern) Matchable() bool {
	return len(p.Signature) > 0
}

// Context describes the caller's live operating state as observed by an
// upstream layer. Tags are treated as an unordered set.
type Context struct {
	Tags  []string `json:"tags"`
	Depth int      `json:"depth"`
}

// Clone returns an independent copy of the context.
func (c Context) Clone() Context {
	return Context{
		Tags:  append([]string(nil), c.Tags...),
		Depth: c.Depth,
	}
}

// NormalizeTags deduplicates tags, dropping empty strings. Order of first
// appearance is preserved.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
