package bench

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// PassThreshold is the accuracy a response needs for its test to pass
const PassThreshold = 70.0

// BenchmarkMetrics holds the raw measurements of one test execution or the
// mean over several executions
type BenchmarkMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	TokensTotal  int     `json:"tokensTotal"`
	TokensInput  int     `json:"tokensInput"`
	TokensOutput int     `json:"tokensOutput"`
	DurationMs   int     `json:"durationMs"`
	ToolCount    int     `json:"toolCount"`
	CostUSD      float64 `json:"costUsd"`
}

// TestResult is the scored outcome of a single test execution
type TestResult struct {
	Test            TestDefinition   `json:"test"`
	Metrics         BenchmarkMetrics `json:"metrics"`
	MatchedConcepts []string         `json:"matchedConcepts"`
	MissedConcepts  []string         `json:"missedConcepts"`
	Response        string           `json:"response"`
	Timestamp       time.Time        `json:"timestamp"`
	Passed          bool             `json:"passed"`
}

// Name returns the name of the scored test, or an empty string
func (r TestResult) Name() string {
	if r.Test == nil {
		return ""
	}
	return r.Test.Base().Name
}

// Type returns the type of the scored test, or an empty string
func (r TestResult) Type() TestType {
	if r.Test == nil {
		return ""
	}
	return r.Test.Type()
}

type testResultJSON struct {
	Test            json.RawMessage  `json:"test"`
	Metrics         BenchmarkMetrics `json:"metrics"`
	MatchedConcepts []string         `json:"matchedConcepts"`
	MissedConcepts  []string         `json:"missedConcepts"`
	Response        string           `json:"response"`
	Timestamp       time.Time        `json:"timestamp"`
	Passed          bool             `json:"passed"`
}

// MarshalJSON encodes the result with a typed test definition
func (r TestResult) MarshalJSON() ([]byte, error) {
	test, err := MarshalDefinition(r.Test)
	if err != nil {
		return nil, err
	}
	return json.Marshal(testResultJSON{
		Test:            test,
		Metrics:         r.Metrics,
		MatchedConcepts: r.MatchedConcepts,
		MissedConcepts:  r.MissedConcepts,
		Response:        r.Response,
		Timestamp:       r.Timestamp,
		Passed:          r.Passed,
	})
}

// UnmarshalJSON decodes a result written by MarshalJSON
func (r *TestResult) UnmarshalJSON(data []byte) error {
	var raw testResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "failed to decode test result")
	}

	var test TestDefinition
	if len(raw.Test) > 0 && string(raw.Test) != "null" {
		def, err := UnmarshalDefinition(raw.Test)
		if err != nil {
			return err
		}
		test = def
	}

	*r = TestResult{
		Test:            test,
		Metrics:         raw.Metrics,
		MatchedConcepts: raw.MatchedConcepts,
		MissedConcepts:  raw.MissedConcepts,
		Response:        raw.Response,
		Timestamp:       raw.Timestamp,
		Passed:          raw.Passed,
	}
	return nil
}
