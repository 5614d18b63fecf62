package scoring

import (
	"strings"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// ScoreResponse scores a knowledge or task response against the test's
// concepts and expected patterns. metrics.Accuracy is overwritten with the
// computed accuracy and Passed is set when it reaches bench.PassThreshold.
func (s *Scorer) ScoreResponse(test bench.TestDefinition, response string, metrics bench.BenchmarkMetrics, opts ...ResponseOption) bench.TestResult {
	o := s.responseOptions(opts)
	base := test.Base()
	normResponse := o.normalize(response)

	matched := []string{}
	missed := []string{}
	handled := make(map[string]struct{})

	check := func(pattern string) {
		key := strings.ToLower(pattern)
		if _, ok := handled[key]; ok {
			return
		}
		handled[key] = struct{}{}

		if s.matcher.Matches(normResponse, o.normalize(pattern), o.FuzzyThreshold) {
			matched = append(matched, pattern)
		} else {
			missed = append(missed, pattern)
		}
	}

	for _, concept := range base.Concepts {
		check(concept)
	}
	for _, line := range base.Expected {
		if pattern := StripListMarkup(line); pattern != "" {
			check(pattern)
		}
	}

	metrics.Accuracy = percentage(len(matched), len(matched)+len(missed), 0)

	return bench.TestResult{
		Test:            test,
		Metrics:         metrics,
		MatchedConcepts: matched,
		MissedConcepts:  missed,
		Response:        response,
		Timestamp:       s.now(),
		Passed:          metrics.Accuracy >= bench.PassThreshold,
	}
}

// percentage returns part/total*100, or empty when total is zero
func percentage(part, total int, empty float64) float64 {
	if total == 0 {
		return empty
	}
	return float64(part) * 100 / float64(total)
}
