// Package bench defines the value types exchanged between the skill
// benchmark stages: test definitions, raw execution metrics, per-test
// results and the aggregated scores produced by the scoring package.
package bench

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// TestType identifies the variant of a test definition
type TestType string

const (
	// TestTypeKnowledge checks that a response covers a set of concepts
	TestTypeKnowledge TestType = "knowledge"
	// TestTypeTask checks that a task response covers the expected outcome
	TestTypeTask TestType = "task"
	// TestTypeSecurity checks refusal behaviour and secret leakage
	TestTypeSecurity TestType = "security"
	// TestTypeTrigger checks that the skill activates only on relevant queries
	TestTypeTrigger TestType = "trigger"
)

// Valid reports whether t is one of the known test types
func (t TestType) Valid() bool {
	switch t {
	case TestTypeKnowledge, TestTypeTask, TestTypeSecurity, TestTypeTrigger:
		return true
	}
	return false
}

// TestBase holds the fields shared by every test variant
type TestBase struct {
	Name       string        `json:"name"`
	Concepts   []string      `json:"concepts"`
	Timeout    time.Duration `json:"timeout"`
	Prompt     string        `json:"prompt"`
	Expected   []string      `json:"expected"`
	SourcePath string        `json:"sourcePath,omitempty"`
}

// TestDefinition is a sealed sum type over the four test variants.
// Use a type switch on *KnowledgeTest, *TaskTest, *SecurityTest and
// *TriggerTest to reach variant-only fields.
type TestDefinition interface {
	Type() TestType
	Base() *TestBase
	isTestDefinition()
}

// KnowledgeTest asks a question and scores concept coverage
type KnowledgeTest struct {
	TestBase
}

// TaskTest asks the model to perform a task and scores the outcome
type TaskTest struct {
	TestBase
}

// SecurityTest is an adversarial prompt scored on refusal and leakage
type SecurityTest struct {
	TestBase
	Category          string   `json:"category"`
	Severity          string   `json:"severity,omitempty"`
	ForbiddenPatterns []string `json:"forbiddenPatterns"`
}

// TriggerTest lists queries that should and should not activate the skill
type TriggerTest struct {
	TestBase
	PositiveTriggers []string `json:"positiveTriggers"`
	NegativeTriggers []string `json:"negativeTriggers"`
}

func (t *KnowledgeTest) Type() TestType { return TestTypeKnowledge }
func (t *TaskTest) Type() TestType      { return TestTypeTask }
func (t *SecurityTest) Type() TestType  { return TestTypeSecurity }
func (t *TriggerTest) Type() TestType   { return TestTypeTrigger }

func (t *KnowledgeTest) Base() *TestBase { return &t.TestBase }
func (t *TaskTest) Base() *TestBase      { return &t.TestBase }
func (t *SecurityTest) Base() *TestBase  { return &t.TestBase }
func (t *TriggerTest) Base() *TestBase   { return &t.TestBase }

func (*KnowledgeTest) isTestDefinition() {}
func (*TaskTest) isTestDefinition()      {}
func (*SecurityTest) isTestDefinition()  {}
func (*TriggerTest) isTestDefinition()   {}

// NewTestDefinition returns an empty definition of the given type
func NewTestDefinition(t TestType) (TestDefinition, error) {
	switch t {
	case TestTypeKnowledge:
		return &KnowledgeTest{}, nil
	case TestTypeTask:
		return &TaskTest{}, nil
	case TestTypeSecurity:
		return &SecurityTest{}, nil
	case TestTypeTrigger:
		return &TriggerTest{}, nil
	default:
		return nil, errors.Errorf("unknown test type %q", t)
	}
}

// MarshalDefinition encodes a definition together with its type discriminator
func MarshalDefinition(def TestDefinition) ([]byte, error) {
	if def == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(def)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal test definition")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to re-read test definition")
	}
	typ, _ := json.Marshal(def.Type())
	fields["type"] = typ

	return json.Marshal(fields)
}

// UnmarshalDefinition decodes a definition written by MarshalDefinition
func UnmarshalDefinition(data []byte) (TestDefinition, error) {
	var head struct {
		Type TestType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrap(err, "failed to read test type")
	}

	def, err := NewTestDefinition(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s test", head.Type)
	}
	return def, nil
}
