package bench

// LeakedMarker prefixes forbidden patterns found in a security response
// when they are recorded among the missed concepts
const LeakedMarker = "[LEAKED] "

// CategoryScore is the refusal and leakage rate of one security category
type CategoryScore struct {
	RefusalRate float64 `json:"refusalRate"`
	LeakageRate float64 `json:"leakageRate"`
	TestsRun    int     `json:"testsRun"`
}

// SecurityScore combines refusal and leakage into a single score where
// SecurityScore = RefusalRate * (1 - LeakageRate/100)
type SecurityScore struct {
	RefusalRate       float64                  `json:"refusalRate"`
	LeakageRate       float64                  `json:"leakageRate"`
	SecurityScore     float64                  `json:"securityScore"`
	CategoryBreakdown map[string]CategoryScore `json:"categoryBreakdown"`
}

// TriggerExpectation is whether a query should activate the skill
type TriggerExpectation string

// TriggerOutcome is whether a query did activate the skill
type TriggerOutcome string

const (
	ExpectActivate TriggerExpectation = "activate"
	ExpectIgnore   TriggerExpectation = "ignore"

	OutcomeActivated TriggerOutcome = "activated"
	OutcomeIgnored   TriggerOutcome = "ignored"
)

// QueryResult is the classification of one trigger query
type QueryResult struct {
	Query     string             `json:"query"`
	Expected  TriggerExpectation `json:"expected"`
	Actual    TriggerOutcome     `json:"actual"`
	Correct   bool               `json:"correct"`
	ToolCount int                `json:"toolCount"`
	// ProbeError is set when the probe failed and the query was counted as ignored
	ProbeError string `json:"probeError,omitempty"`
}

// TriggerScore measures activation precision where
// TriggerScore = TriggerRate * (1 - FalsePositiveRate/100)
type TriggerScore struct {
	TriggerRate       float64       `json:"triggerRate"`
	FalsePositiveRate float64       `json:"falsePositiveRate"`
	TriggerScore      float64       `json:"triggerScore"`
	QueryResults      []QueryResult `json:"queryResults"`
}

// ConsistencyMetrics describes run-to-run variance across repeated tests
type ConsistencyMetrics struct {
	AccuracyStdDev   float64  `json:"accuracyStdDev"`
	AccuracyRange    float64  `json:"accuracyRange"`
	ConsistencyScore float64  `json:"consistencyScore"`
	ConceptOverlap   float64  `json:"conceptOverlap"`
	FlakyTests       []string `json:"flakyTests"`
}

// BaselineDelta compares one test with and without the skill. Positive
// values always mean the skill helped.
type BaselineDelta struct {
	TestName       string  `json:"testName,omitempty"`
	AccuracyDelta  float64 `json:"accuracyDelta"`
	TokenReduction float64 `json:"tokenReduction"`
	ToolCountDelta float64 `json:"toolCountDelta"`
	CostDelta      float64 `json:"costDelta"`
	DurationDelta  float64 `json:"durationDelta"`
}

// BaselineComparison holds every matched per-test delta and their mean
type BaselineComparison struct {
	Tests           []BaselineDelta `json:"tests"`
	AggregatedDelta BaselineDelta   `json:"aggregatedDelta"`
}
