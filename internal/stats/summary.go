package stats

import (
	"math"
	"sort"

	"jumptrainer/internal/model"
)

// BestAgent returns the agent with the highest reward, first index on ties.
func BestAgent(run model.RunRecord) (model.AgentResult, bool) {
	if len(run.Agents) == 0 {
		return model.AgentResult{}, false
	}
	best := run.Agents[0]
	for _, a := range run.Agents[1:] {
		if a.Reward > best.Reward {
			best = a
		}
	}
	return best, true
}

type Outcomes struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Jumps     int `json:"jumps"`
}

func TotalOutcomes(episodes []model.EpisodeSummary) Outcomes {
	var out Outcomes
	for _, e := range episodes {
		out.Successes += e.Successes
		out.Failures += e.Failures
		out.Jumps += e.Jumps
	}
	return out
}

// SeedResult is one headless evaluation.
type SeedResult struct {
	Seed      int64   `json:"seed"`
	Fitness   float64 `json:"fitness"`
	Successes int     `json:"successes"`
	Failures  int     `json:"failures"`
	BestAgent string  `json:"best_agent"`
}

type EvaluationStats struct {
	Runs        int          `json:"runs"`
	MeanFitness float64      `json:"mean_fitness"`
	StdFitness  float64      `json:"std_fitness"`
	MinFitness  float64      `json:"min_fitness"`
	MaxFitness  float64      `json:"max_fitness"`
	BestSeed    int64        `json:"best_seed"`
	Results     []SeedResult `json:"results"`
}

// BuildEvaluationStats aggregates per-seed results. Results are ordered by
// seed so parallel evaluation order does not leak into the report.
func BuildEvaluationStats(results []SeedResult) EvaluationStats {
	sorted := append([]SeedResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seed < sorted[j].Seed })

	out := EvaluationStats{Runs: len(sorted), Results: sorted}
	if len(sorted) == 0 {
		return out
	}
	values := make([]float64, len(sorted))
	out.MinFitness = sorted[0].Fitness
	out.MaxFitness = sorted[0].Fitness
	out.BestSeed = sorted[0].Seed
	for i, r := range sorted {
		values[i] = r.Fitness
		if r.Fitness < out.MinFitness {
			out.MinFitness = r.Fitness
		}
		if r.Fitness > out.MaxFitness {
			out.MaxFitness = r.Fitness
			out.BestSeed = r.Seed
		}
	}
	out.MeanFitness, out.StdFitness = meanStd(values)
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) == 1 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}
