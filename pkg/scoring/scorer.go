// Package scoring turns raw skill responses into quantitative judgments:
// concept accuracy, security refusal and leakage, trigger precision,
// run-to-run consistency and the with/without skill baseline delta.
//
// Everything here is a pure function of its inputs. The only dependency on
// the outside world is the Probe used by trigger scoring.
package scoring

import (
	"regexp"
	"strings"
	"time"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// PassPolicy decides whether a scored security or trigger result passes.
// Accuracy scoring always uses bench.PassThreshold.
type PassPolicy func(score float64) bool

// MinScore returns a PassPolicy that passes scores at or above min
func MinScore(min float64) PassPolicy {
	return func(score float64) bool { return score >= min }
}

// Scorer scores individual responses. It is immutable after construction.
type Scorer struct {
	matcher        *Matcher
	fuzzyThreshold float64
	securityPass   PassPolicy
	triggerPass    PassPolicy
	now            func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithMatcher sets the concept matcher
func WithMatcher(m *Matcher) Option {
	return func(s *Scorer) { s.matcher = m }
}

// WithFuzzyThreshold sets the default multi-word match threshold
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Scorer) {
		if threshold > 0 && threshold <= 1 {
			s.fuzzyThreshold = threshold
		}
	}
}

// WithSecurityPassPolicy sets how a security result's Passed flag is decided.
// Without a policy security results never pass.
func WithSecurityPassPolicy(p PassPolicy) Option {
	return func(s *Scorer) { s.securityPass = p }
}

// WithTriggerPassPolicy sets how a trigger score is judged by TriggerPassed
func WithTriggerPassPolicy(p PassPolicy) Option {
	return func(s *Scorer) { s.triggerPass = p }
}

// WithClock sets the time source used for result timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New creates a Scorer with the default matcher and threshold
func New(opts ...Option) *Scorer {
	s := &Scorer{
		matcher:        NewMatcher(),
		fuzzyThreshold: DefaultFuzzyThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerPassed applies the trigger pass policy; false without one
func (s *Scorer) TriggerPassed(score bench.TriggerScore) bool {
	if s.triggerPass == nil {
		return false
	}
	return s.triggerPass(score.TriggerScore)
}

// ResponseOptions tune a single ScoreResponse call
type ResponseOptions struct {
	CaseSensitive  bool
	FuzzyThreshold float64
}

// ResponseOption configures a single ScoreResponse call
type ResponseOption func(*ResponseOptions)

// CaseSensitive disables lowercasing of response and concepts
func CaseSensitive() ResponseOption {
	return func(o *ResponseOptions) { o.CaseSensitive = true }
}

// Threshold overrides the multi-word match threshold for one call
func Threshold(t float64) ResponseOption {
	return func(o *ResponseOptions) { o.FuzzyThreshold = t }
}

func (s *Scorer) responseOptions(opts []ResponseOption) ResponseOptions {
	o := ResponseOptions{FuzzyThreshold: s.fuzzyThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	if o.FuzzyThreshold <= 0 || o.FuzzyThreshold > 1 {
		o.FuzzyThreshold = s.fuzzyThreshold
	}
	return o
}

func (o ResponseOptions) normalize(text string) string {
	if o.CaseSensitive {
		return text
	}
	return strings.ToLower(text)
}

var listMarkup = regexp.MustCompile(`^\s*(?:[-*+]\s+)?(?:\[[ xX]\]\s*)?(?:\d+[.)]\s+)?`)

// StripListMarkup removes a leading bullet, checkbox or list number from an
// expected-pattern line, leaving the bare pattern text
func StripListMarkup(line string) string {
	return strings.TrimSpace(listMarkup.ReplaceAllString(line, ""))
}
