package scoring

import (
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// baselineComparable reports whether a test's effect can be expressed as a
// token, cost or accuracy delta. Security and trigger tests cannot.
func baselineComparable(test bench.TestDefinition) bool {
	switch test.(type) {
	case *bench.KnowledgeTest, *bench.TaskTest:
		return true
	default:
		return false
	}
}

// ComputeBaselineComparison pairs knowledge and task results by test name
// and reports how the skill changed accuracy, tokens, tool calls, cost and
// duration. Names present on only one side are dropped. When a name occurs
// more than once on a side, its first result is used.
func ComputeBaselineComparison(withSkill, withoutSkill []bench.TestResult) bench.BaselineComparison {
	baseline := make(map[string]bench.TestResult)
	for _, r := range withoutSkill {
		if r.Test == nil || !baselineComparable(r.Test) {
			continue
		}
		if _, ok := baseline[r.Name()]; !ok {
			baseline[r.Name()] = r
		}
	}

	comparison := bench.BaselineComparison{Tests: []bench.BaselineDelta{}}
	seen := make(map[string]struct{})
	for _, with := range withSkill {
		if with.Test == nil || !baselineComparable(with.Test) {
			continue
		}
		name := with.Name()
		if _, dup := seen[name]; dup {
			continue
		}
		without, ok := baseline[name]
		if !ok {
			continue
		}
		seen[name] = struct{}{}
		comparison.Tests = append(comparison.Tests, delta(name, with.Metrics, without.Metrics))
	}

	if len(comparison.Tests) == 0 {
		return comparison
	}

	var agg bench.BaselineDelta
	for _, d := range comparison.Tests {
		agg.AccuracyDelta += d.AccuracyDelta
		agg.TokenReduction += d.TokenReduction
		agg.ToolCountDelta += d.ToolCountDelta
		agg.CostDelta += d.CostDelta
		agg.DurationDelta += d.DurationDelta
	}
	n := float64(len(comparison.Tests))
	comparison.AggregatedDelta = bench.BaselineDelta{
		AccuracyDelta:  agg.AccuracyDelta / n,
		TokenReduction: agg.TokenReduction / n,
		ToolCountDelta: agg.ToolCountDelta / n,
		CostDelta:      agg.CostDelta / n,
		DurationDelta:  agg.DurationDelta / n,
	}
	return comparison
}

func delta(name string, with, without bench.BenchmarkMetrics) bench.BaselineDelta {
	reduction := 0.0
	if without.TokensTotal != 0 {
		reduction = float64(without.TokensTotal-with.TokensTotal) / float64(without.TokensTotal) * 100
	}
	return bench.BaselineDelta{
		TestName:       name,
		AccuracyDelta:  with.Accuracy - without.Accuracy,
		TokenReduction: reduction,
		ToolCountDelta: float64(without.ToolCount - with.ToolCount),
		CostDelta:      without.CostUSD - with.CostUSD,
		DurationDelta:  float64(without.DurationMs - with.DurationMs),
	}
}
