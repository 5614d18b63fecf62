package bench

import "time"

// Report is the outcome of benchmarking one skill against a test suite
type Report struct {
	SkillID          string    `json:"skillId"`
	SkillDescription string    `json:"skillDescription,omitempty"`
	Model            string    `json:"model"`
	Runs             int       `json:"runs"`
	Timestamp        time.Time `json:"timestamp"`

	// Results holds every run of every test with the skill loaded
	Results []TestResult `json:"results"`
	// BaselineResults holds the knowledge and task runs without the skill
	BaselineResults []TestResult `json:"baselineResults,omitempty"`

	// FailedExecutions counts runs, with or without the skill, whose CLI
	// invocation failed. Those runs are excluded from every aggregate.
	FailedExecutions int `json:"failedExecutions,omitempty"`

	Metrics     BenchmarkMetrics    `json:"metrics"`
	PassRate    float64             `json:"passRate"`
	Security    *SecurityScore      `json:"security,omitempty"`
	Trigger     *TriggerScore       `json:"trigger,omitempty"`
	Consistency *ConsistencyMetrics `json:"consistency,omitempty"`
	Baseline    *BaselineComparison `json:"baseline,omitempty"`
}
