// Package runner benchmarks a skill against a suite of test definitions.
// It executes every test the configured number of times, scores each
// response according to the test's variant and folds the results into a
// bench.Report.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/skillbench/pkg/executor"
	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/scoring"
	"github.com/jingkaihe/skillbench/pkg/skills"
	"github.com/jingkaihe/skillbench/pkg/telemetry"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Executor runs a single prompt
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Record, error)
}

// Options configures a benchmark run
type Options struct {
	Skill *skills.Skill
	Tests []bench.TestDefinition

	// Runs is the number of executions per test, at least 1
	Runs int
	// Concurrency bounds the number of tests executed in parallel
	Concurrency int
	// Baseline also runs knowledge and task tests without the skill
	Baseline bool
	Model    string
	WorkDir  string

	Executor Executor
	Probe    scoring.Probe
	Scorer   *scoring.Scorer

	// OnResult is called after each scored execution. Calls are serialized.
	OnResult func(result bench.TestResult, withSkill bool)
	Now      func() time.Time
}

// testOutcome collects the executions of one test
type testOutcome struct {
	with     []bench.TestResult
	without  []bench.TestResult
	triggers []bench.TriggerScore
}

// Run benchmarks opts.Skill and returns the assembled report. A failed
// execution does not abort the run; it is recorded as a zero-accuracy
// result that counts against the pass rate and is left out of the
// aggregated metrics, security, consistency and baseline scores. Only
// cancellation of ctx stops the run early.
func Run(ctx context.Context, opts Options) (*bench.Report, error) {
	if opts.Skill == nil {
		return nil, errors.New("no skill to benchmark")
	}
	if opts.Executor == nil {
		return nil, errors.New("no executor configured")
	}
	if opts.Runs < 1 {
		opts.Runs = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.New()
	}
	if opts.Probe == nil {
		opts.Probe = noProbe{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	outcomes := make([]testOutcome, len(opts.Tests))
	r := &run{opts: opts}

	err := telemetry.WithSpan(ctx, "runner.run", func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, test := range opts.Tests {
			g.Go(func() error {
				out, err := r.runTest(ctx, test)
				outcomes[i] = out
				return err
			})
		}
		return g.Wait()
	},
		attribute.String("skill.id", opts.Skill.Name),
		attribute.Int("bench.tests", len(opts.Tests)),
		attribute.Int("bench.runs", opts.Runs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "benchmark run aborted")
	}

	return assemble(opts, outcomes), nil
}

type run struct {
	opts Options
	mu   sync.Mutex
}

func (r *run) report(result bench.TestResult, withSkill bool) {
	if r.opts.OnResult == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.OnResult(result, withSkill)
}

func (r *run) runTest(ctx context.Context, test bench.TestDefinition) (testOutcome, error) {
	var out testOutcome
	base := test.Base()

	for n := 1; n <= r.opts.Runs; n++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		log := logger.G(ctx).WithField("test", base.Name).WithField("run", n)
		log.Debug("executing test")

		switch t := test.(type) {
		case *bench.KnowledgeTest, *bench.TaskTest:
			with, err := r.execute(ctx, test, n, r.opts.Skill, func(rec executor.Record) bench.TestResult {
				return r.opts.Scorer.ScoreResponse(test, rec.Response, rec.Metrics())
			})
			if err != nil {
				return out, err
			}
			out.with = append(out.with, with)
			r.report(with, true)

			if r.opts.Baseline {
				without, err := r.execute(ctx, test, n, nil, func(rec executor.Record) bench.TestResult {
					return r.opts.Scorer.ScoreResponse(test, rec.Response, rec.Metrics())
				})
				if err != nil {
					return out, err
				}
				out.without = append(out.without, without)
				r.report(without, false)
			}

		case *bench.SecurityTest:
			with, err := r.execute(ctx, test, n, r.opts.Skill, func(rec executor.Record) bench.TestResult {
				return r.opts.Scorer.ScoreSecurityResponse(t, rec.Response, rec.Metrics())
			})
			if err != nil {
				return out, err
			}
			out.with = append(out.with, with)
			r.report(with, true)

		case *bench.TriggerTest:
			var score bench.TriggerScore
			_ = telemetry.WithSpan(ctx, "runner.trigger", func(ctx context.Context) error {
				score = r.opts.Scorer.ScoreTriggerTest(ctx, t, r.opts.Skill.Directory, r.opts.WorkDir, r.opts.Probe)
				return nil
			}, telemetry.TestAttributes(base.Name, string(test.Type()), n, true)...)
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.triggers = append(out.triggers, score)
			result := r.triggerResult(t, score)
			out.with = append(out.with, result)
			r.report(result, true)

		default:
			return out, errors.Errorf("unsupported test type %T", test)
		}
	}
	return out, nil
}

// execute runs the test prompt once and scores the record. Execution
// failures become zero-accuracy results; only cancellation is returned.
func (r *run) execute(ctx context.Context, test bench.TestDefinition, n int, skill *skills.Skill, score func(executor.Record) bench.TestResult) (bench.TestResult, error) {
	base := test.Base()
	var result bench.TestResult

	err := telemetry.WithSpan(ctx, "runner.test", func(ctx context.Context) error {
		rec, err := r.opts.Executor.Execute(ctx, executor.Request{
			Prompt:  base.Prompt,
			Model:   r.opts.Model,
			Skill:   skill,
			WorkDir: r.opts.WorkDir,
			Timeout: base.Timeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.G(ctx).WithError(err).WithField("test", base.Name).WithField("run", n).Warn("test execution failed")
			result = failedResult(test, err, r.opts.Now())
			return nil
		}

		result = score(rec)
		telemetry.SetAttributes(ctx, attribute.Float64("test.accuracy", result.Metrics.Accuracy))
		return nil
	}, telemetry.TestAttributes(base.Name, string(test.Type()), n, skill != nil)...)

	return result, err
}

func (r *run) triggerResult(test *bench.TriggerTest, score bench.TriggerScore) bench.TestResult {
	matched := []string{}
	missed := []string{}
	tools := 0
	for _, q := range score.QueryResults {
		tools += q.ToolCount
		if q.Correct {
			matched = append(matched, q.Query)
		} else {
			missed = append(missed, q.Query)
		}
	}

	return bench.TestResult{
		Test:            test,
		Metrics:         bench.BenchmarkMetrics{Accuracy: score.TriggerScore, ToolCount: tools},
		MatchedConcepts: matched,
		MissedConcepts:  missed,
		Response:        fmt.Sprintf("trigger rate %.1f%%, false positive rate %.1f%%", score.TriggerRate, score.FalsePositiveRate),
		Timestamp:       r.opts.Now(),
		Passed:          r.opts.Scorer.TriggerPassed(score),
	}
}

// failedPrefix starts the response of a result whose execution failed
const failedPrefix = "execution failed: "

// Failed reports whether result records a failed execution rather than a
// scored response
func Failed(result bench.TestResult) bool {
	return strings.HasPrefix(result.Response, failedPrefix)
}

func failedResult(test bench.TestDefinition, err error, now time.Time) bench.TestResult {
	return bench.TestResult{
		Test:            test,
		MatchedConcepts: []string{},
		MissedConcepts:  []string{},
		Response:        failedPrefix + err.Error(),
		Timestamp:       now,
	}
}

func assemble(opts Options, outcomes []testOutcome) *bench.Report {
	report := &bench.Report{
		SkillID:          opts.Skill.Name,
		SkillDescription: opts.Skill.Description,
		Model:            opts.Model,
		Runs:             opts.Runs,
		Timestamp:        opts.Now(),
		Results:          []bench.TestResult{},
	}

	var triggers []bench.TriggerScore
	for _, out := range outcomes {
		report.Results = append(report.Results, out.with...)
		report.BaselineResults = append(report.BaselineResults, out.without...)
		triggers = append(triggers, out.triggers...)
	}

	// Failed executions carry no tokens, cost or leak data, so they stay out
	// of every aggregate. They still count against the pass rate.
	with, withFailed := succeeded(report.Results)
	without, withoutFailed := succeeded(report.BaselineResults)
	report.FailedExecutions = withFailed + withoutFailed

	report.Metrics = scoring.AggregateMetrics(with)
	report.Security = scoring.AggregateSecurityScores(with)
	report.Trigger = scoring.AggregateTriggerScores(triggers)
	report.Consistency = scoring.ComputeConsistencyMetrics(with)

	perTest := scoring.MeanByTest(report.Results)
	if len(perTest) > 0 {
		passed := 0
		for _, r := range perTest {
			if r.Passed {
				passed++
			}
		}
		report.PassRate = float64(passed) * 100 / float64(len(perTest))
	}

	if opts.Baseline {
		cmp := scoring.ComputeBaselineComparison(scoring.MeanByTest(with), scoring.MeanByTest(without))
		report.Baseline = &cmp
	}

	return report
}

// succeeded returns the results whose execution completed and the number
// of failed ones left out
func succeeded(results []bench.TestResult) ([]bench.TestResult, int) {
	out := make([]bench.TestResult, 0, len(results))
	for _, r := range results {
		if !Failed(r) {
			out = append(out, r)
		}
	}
	return out, len(results) - len(out)
}

type noProbe struct{}

func (noProbe) Probe(context.Context, string, string, string) (scoring.ProbeResult, error) {
	return scoring.ProbeResult{}, errors.New("no trigger probe configured")
}
