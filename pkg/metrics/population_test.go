package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jon-gauntlet/aether-sub009/pkg/core"
)

func pattern(id string, fitness, stability float64, lifecycle core.LifecycleState) *core.Pattern {
	return &core.Pattern{
		ID:        id,
		Signature: []string{"focus"},
		Metrics:   core.Metrics{Fitness: fitness, Stability: stability},
		Lifecycle: lifecycle,
	}
}

func TestAnalyzeEmptyPopulation(t *testing.T) {
	insights := Analyze(nil)
	assert.Equal(t, 0, insights.Size)
	assert.Equal(t, 0.0, insights.AverageFitness)
	assert.Empty(t, insights.BestPatternID)
}

func TestAnalyze(t *testing.T) {
	patterns := []*core.Pattern{
		pattern("low", 0.2, 0.4, core.Unstable),
		pattern("mid", 0.5, 0.6, core.Evolving),
		pattern("high", 0.8, 0.9, core.Protected),
	}

	insights := Analyze(patterns)

	assert.Equal(t, 3, insights.Size)
	assert.InDelta(t, 0.5, insights.AverageFitness, 1e-9)
	assert.InDelta(t, 0.8, insights.BestFitness, 1e-9)
	assert.InDelta(t, 0.2, insights.WorstFitness, 1e-9)
	assert.Equal(t, "high", insights.BestPatternID)
	assert.InDelta(t, (0.4+0.6+0.9)/3, insights.AverageStability, 1e-9)
	assert.Greater(t, insights.FitnessStdDev, 0.0)

	assert.Equal(t, 1, insights.LifecycleCounts["PROTECTED"])
	assert.Equal(t, 1, insights.LifecycleCounts["EVOLVING"])
	assert.Equal(t, 1, insights.LifecycleCounts["UNSTABLE"])
}

func TestAnalyzeSinglePattern(t *testing.T) {
	insights := Analyze([]*core.Pattern{pattern("only", 0.7, 0.5, core.Stable)})

	assert.Equal(t, 1, insights.Size)
	assert.InDelta(t, 0.7, insights.BestFitness, 1e-9)
	assert.InDelta(t, 0.7, insights.WorstFitness, 1e-9)
	assert.Equal(t, 0.0, insights.FitnessStdDev)
}
