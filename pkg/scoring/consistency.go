package scoring

import (
	"math"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// FlakyRangeThreshold is the accuracy spread, in percentage points, above
// which a repeated test is reported as flaky
const FlakyRangeThreshold = 20.0

// stdDevPenalty is how many consistency points one point of accuracy
// standard deviation costs
const stdDevPenalty = 3.0

// ComputeConsistencyMetrics measures how much repeated runs of the same
// test disagree. Tests that ran only once are ignored; nil is returned when
// no test ran more than once.
func ComputeConsistencyMetrics(results []bench.TestResult) *bench.ConsistencyMetrics {
	var order []string
	groups := make(map[string][]bench.TestResult)
	for _, r := range results {
		name := r.Name()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], r)
	}

	var stdDevSum, rangeSum, overlapSum float64
	counted := 0
	flaky := []string{}
	for _, name := range order {
		runs := groups[name]
		if len(runs) < 2 {
			continue
		}

		accuracies := make([]float64, len(runs))
		for i, r := range runs {
			accuracies[i] = r.Metrics.Accuracy
		}
		lo, hi, _, stdDev := describe(accuracies)
		spread := hi - lo

		stdDevSum += stdDev
		rangeSum += spread
		overlapSum += conceptOverlap(runs)
		counted++

		if spread > FlakyRangeThreshold {
			flaky = append(flaky, name)
		}
	}

	if counted == 0 {
		return nil
	}

	n := float64(counted)
	avgStdDev := stdDevSum / n
	return &bench.ConsistencyMetrics{
		AccuracyStdDev:   avgStdDev,
		AccuracyRange:    rangeSum / n,
		ConsistencyScore: clamp(100-stdDevPenalty*avgStdDev, 0, 100),
		ConceptOverlap:   overlapSum / n,
		FlakyTests:       flaky,
	}
}

// describe returns min, max, mean and population standard deviation
func describe(values []float64) (lo, hi, mean, stdDev float64) {
	lo, hi = values[0], values[0]
	var sum float64
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	stdDev = math.Sqrt(sq / float64(len(values)))
	return lo, hi, mean, stdDev
}

// conceptOverlap is the share of matched concepts found in every run out of
// those found in any run, 100 when no run matched anything
func conceptOverlap(runs []bench.TestResult) float64 {
	counts := make(map[string]int)
	for _, r := range runs {
		seen := make(map[string]struct{}, len(r.MatchedConcepts))
		for _, c := range r.MatchedConcepts {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			counts[c]++
		}
	}
	if len(counts) == 0 {
		return 100
	}

	intersection := 0
	for _, n := range counts {
		if n == len(runs) {
			intersection++
		}
	}
	return float64(intersection) / float64(len(counts)) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
