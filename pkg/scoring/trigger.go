package scoring

import (
	"context"

	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// ProbeResult is what a probe reports for one query
type ProbeResult struct {
	ToolCount int
}

// Probe runs a single query against the skill and reports how many tools
// the model invoked. Timeouts and cancellation are the probe's concern.
type Probe interface {
	Probe(ctx context.Context, query, skillPath, workDir string) (ProbeResult, error)
}

// ProbeFunc adapts a function to the Probe interface
type ProbeFunc func(ctx context.Context, query, skillPath, workDir string) (ProbeResult, error)

// Probe implements Probe
func (f ProbeFunc) Probe(ctx context.Context, query, skillPath, workDir string) (ProbeResult, error) {
	return f(ctx, query, skillPath, workDir)
}

// IsTriggerTest reports whether test is a trigger test
func IsTriggerTest(test bench.TestDefinition) bool {
	_, ok := test.(*bench.TriggerTest)
	return ok
}

// ScoreTriggerTest probes every positive trigger and then every negative
// trigger, one at a time and in that order. A query counts as activated
// when the probe saw at least one tool call. A probe error is treated as
// not activated and recorded on the query result.
func (s *Scorer) ScoreTriggerTest(ctx context.Context, test *bench.TriggerTest, skillPath, workDir string, probe Probe) bench.TriggerScore {
	log := logger.G(ctx).WithField("test", test.Name)

	results := make([]bench.QueryResult, 0, len(test.PositiveTriggers)+len(test.NegativeTriggers))
	run := func(query string, expected bench.TriggerExpectation) bool {
		res, err := probe.Probe(ctx, query, skillPath, workDir)
		qr := bench.QueryResult{
			Query:     query,
			Expected:  expected,
			Actual:    bench.OutcomeIgnored,
			ToolCount: res.ToolCount,
		}
		if err != nil {
			log.WithError(err).WithField("query", query).Warn("trigger probe failed, counting query as not activated")
			qr.ToolCount = 0
			qr.ProbeError = err.Error()
		}

		activated := qr.ToolCount > 0
		if activated {
			qr.Actual = bench.OutcomeActivated
		}
		qr.Correct = activated == (expected == bench.ExpectActivate)
		results = append(results, qr)
		return activated
	}

	positiveHits := 0
	for _, q := range test.PositiveTriggers {
		if run(q, bench.ExpectActivate) {
			positiveHits++
		}
	}
	negativeHits := 0
	for _, q := range test.NegativeTriggers {
		if run(q, bench.ExpectIgnore) {
			negativeHits++
		}
	}

	score := bench.TriggerScore{
		TriggerRate:       percentage(positiveHits, len(test.PositiveTriggers), 0),
		FalsePositiveRate: percentage(negativeHits, len(test.NegativeTriggers), 0),
		QueryResults:      results,
	}
	score.TriggerScore = combine(score.TriggerRate, score.FalsePositiveRate)

	log.WithField("trigger_rate", score.TriggerRate).
		WithField("false_positive_rate", score.FalsePositiveRate).
		Debug("scored trigger test")

	return score
}

// AggregateTriggerScores averages trigger and false positive rates across
// runs and recomputes the score from the averaged rates rather than
// averaging per-run scores. Query results come from the first run. It
// returns nil for empty input.
func AggregateTriggerScores(scores []bench.TriggerScore) *bench.TriggerScore {
	if len(scores) == 0 {
		return nil
	}

	var triggerSum, fpSum float64
	for _, s := range scores {
		triggerSum += s.TriggerRate
		fpSum += s.FalsePositiveRate
	}
	n := float64(len(scores))

	agg := &bench.TriggerScore{
		TriggerRate:       triggerSum / n,
		FalsePositiveRate: fpSum / n,
		QueryResults:      scores[0].QueryResults,
	}
	agg.TriggerScore = combine(agg.TriggerRate, agg.FalsePositiveRate)
	return agg
}
