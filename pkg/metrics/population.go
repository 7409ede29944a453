// Package metrics computes diagnostic statistics over a pattern
// population. These feed dashboards and tuning decisions; the engine
// itself never acts on them.
package metrics

import (
	"math"

	"github.com/jon-gauntlet/aether-sub009/pkg/core"
)

// PopulationInsights summarizes the health of a pattern population.
type PopulationInsights struct {
	Size             int                    `json:"size"`
	AverageFitness   float64                `json:"average_fitness"`
	BestFitness      float64                `json:"best_fitness"`
	WorstFitness     float64                `json:"worst_fitness"`
	FitnessStdDev    float64                `json:"fitness_std_dev"`
	AverageStability float64                `json:"average_stability"`
	LifecycleCounts  map[string]int         `json:"lifecycle_counts"`
	BestPatternID    string                 `json:"best_pattern_id"`
}

// Analyze computes insights over a population snapshot. An empty
// population yields a zero-valued report.
func Analyze(patterns []*core.Pattern) PopulationInsights {
	insights := PopulationInsights{
		Size:            len(patterns),
		LifecycleCounts: make(map[string]int),
	}
	if len(patterns) == 0 {
		return insights
	}

	fitnesses := make([]float64, 0, len(patterns))
	var stabilitySum float64
	insights.WorstFitness = math.MaxFloat64

	for _, p := range patterns {
		f := p.Metrics.Fitness
		fitnesses = append(fitnesses, f)
		stabilitySum += p.Metrics.Stability
		insights.LifecycleCounts[p.Lifecycle.String()]++

		if f > insights.BestFitness || insights.BestPatternID == "" {
			insights.BestFitness = f
			insights.BestPatternID = p.ID
		}
		if f < insights.WorstFitness {
			insights.WorstFitness = f
		}
	}

	insights.AverageFitness = mean(fitnesses)
	insights.FitnessStdDev = stdDev(fitnesses)
	insights.AverageStability = stabilitySum / float64(len(patterns))

	return insights
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += math.Pow(v-m, 2)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
