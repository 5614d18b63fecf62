package scoring

import (
	"math"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// AggregateMetrics returns the field-wise mean of the results' metrics.
// Token, duration and tool counts are rounded to the nearest integer;
// accuracy and cost stay fractional. Empty input yields a zero record.
func AggregateMetrics(results []bench.TestResult) bench.BenchmarkMetrics {
	if len(results) == 0 {
		return bench.BenchmarkMetrics{}
	}

	var accuracy, total, input, output, duration, tools, cost float64
	for _, r := range results {
		m := r.Metrics
		accuracy += m.Accuracy
		total += float64(m.TokensTotal)
		input += float64(m.TokensInput)
		output += float64(m.TokensOutput)
		duration += float64(m.DurationMs)
		tools += float64(m.ToolCount)
		cost += m.CostUSD
	}

	n := float64(len(results))
	return bench.BenchmarkMetrics{
		Accuracy:     accuracy / n,
		TokensTotal:  int(math.Round(total / n)),
		TokensInput:  int(math.Round(input / n)),
		TokensOutput: int(math.Round(output / n)),
		DurationMs:   int(math.Round(duration / n)),
		ToolCount:    int(math.Round(tools / n)),
		CostUSD:      cost / n,
	}
}

// MeanByTest collapses repeated runs into one result per test name, in
// first-seen order. The first run supplies the test, response and concept
// lists; metrics are averaged with AggregateMetrics and Passed is
// re-evaluated when the test is scored on accuracy.
func MeanByTest(results []bench.TestResult) []bench.TestResult {
	var order []string
	groups := make(map[string][]bench.TestResult)
	for _, r := range results {
		name := r.Name()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], r)
	}

	out := make([]bench.TestResult, 0, len(order))
	for _, name := range order {
		runs := groups[name]
		merged := runs[0]
		merged.Metrics = AggregateMetrics(runs)
		if baselineComparable(merged.Test) {
			merged.Passed = merged.Metrics.Accuracy >= bench.PassThreshold
		} else {
			passed := 0
			for _, r := range runs {
				if r.Passed {
					passed++
				}
			}
			merged.Passed = passed*2 > len(runs)
		}
		out = append(out, merged)
	}
	return out
}
