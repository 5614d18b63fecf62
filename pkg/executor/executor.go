// Package executor runs prompts through the model CLI and measures the
// outcome. Each invocation runs `claude -p` in stream-json mode, optionally
// with a skill appended to the system prompt, and is folded into a Record of
// response text, token usage, cost, tool calls and duration.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/osutil"
	"github.com/jingkaihe/skillbench/pkg/skills"
	"github.com/jingkaihe/skillbench/pkg/telemetry"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

const (
	// DefaultBinary is the model CLI executable
	DefaultBinary = "claude"
	// DefaultTimeout bounds a single invocation when the request sets none
	DefaultTimeout = 2 * time.Minute
	// DefaultRetryAttempts is the number of retries after a failed invocation
	DefaultRetryAttempts = 2
)

// Record is the measured outcome of one CLI invocation
type Record struct {
	Response     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	ToolCount    int
	DurationMs   int
	Success      bool
}

// Metrics converts the record into benchmark metrics with zero accuracy.
// Accuracy is filled in by the scorers.
func (r Record) Metrics() bench.BenchmarkMetrics {
	return bench.BenchmarkMetrics{
		TokensTotal:  r.InputTokens + r.OutputTokens,
		TokensInput:  r.InputTokens,
		TokensOutput: r.OutputTokens,
		DurationMs:   r.DurationMs,
		ToolCount:    r.ToolCount,
		CostUSD:      r.CostUSD,
	}
}

// Request describes one prompt execution
type Request struct {
	Prompt  string
	Model   string
	Skill   *skills.Skill // nil runs the prompt without skill context
	WorkDir string
	Timeout time.Duration
}

// CommandRunner runs an external command and returns its stdout and stderr
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config configures the CLI invocation
type Config struct {
	Binary        string
	ExtraArgs     []string
	Model         string
	RetryAttempts int
	RetryDelay    time.Duration
}

// Executor runs prompts through the model CLI
type Executor struct {
	config Config
	runner CommandRunner
}

// Option configures an Executor
type Option func(*Executor)

// WithCommandRunner replaces the os/exec based runner
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// New creates an executor, filling unset config fields with defaults
func New(config Config, opts ...Option) *Executor {
	if config.Binary == "" {
		config.Binary = DefaultBinary
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	e := &Executor{config: config, runner: execRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Args builds the CLI arguments for a request
func (e *Executor) Args(req Request) []string {
	model := req.Model
	if model == "" {
		model = e.config.Model
	}

	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.Skill != nil {
		args = append(args,
			"--append-system-prompt", skillPrompt(req.Skill),
			"--add-dir", req.Skill.Directory,
		)
	}
	return append(args, e.config.ExtraArgs...)
}

func skillPrompt(s *skills.Skill) string {
	var b strings.Builder
	b.WriteString("# Skill: ")
	b.WriteString(s.Name)
	b.WriteString("\n\n")
	b.WriteString(s.Description)
	b.WriteString("\n\n")
	b.WriteString(s.Content)
	return b.String()
}

// Execute runs the request, retrying failed invocations. Timeouts and
// cancellation are not retried. A response that reports an error is
// returned as a record with Success unset rather than as an error.
func (e *Executor) Execute(ctx context.Context, req Request) (Record, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	args := e.Args(req)
	log := logger.G(ctx).WithField("with_skill", req.Skill != nil)

	var rec Record
	err := telemetry.WithSpan(ctx, "executor.invoke", func(ctx context.Context) error {
		return retry.Do(
			func() error {
				attemptCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				started := time.Now()
				stdout, stderr, err := e.runner.Run(attemptCtx, req.WorkDir, e.config.Binary, args...)
				if err != nil {
					if attemptCtx.Err() == context.DeadlineExceeded {
						return retry.Unrecoverable(errors.Errorf("%s timed out after %s", e.config.Binary, timeout))
					}
					if ctx.Err() != nil {
						return retry.Unrecoverable(ctx.Err())
					}
					return errors.Wrapf(err, "%s failed: %s", e.config.Binary, strings.TrimSpace(string(stderr)))
				}

				parsed, err := ParseStreamJSON(stdout)
				if err != nil {
					return err
				}
				if parsed.DurationMs == 0 {
					parsed.DurationMs = int(time.Since(started).Milliseconds())
				}
				rec = parsed
				return nil
			},
			retry.Attempts(uint(e.config.RetryAttempts)+1),
			retry.Delay(e.config.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				log.WithError(err).WithField("attempt", n+1).Warn("retrying model CLI invocation")
			}),
		)
	}, attribute.String("executor.binary", e.config.Binary))
	if err != nil {
		return Record{}, err
	}

	log.WithField("tokens", rec.InputTokens+rec.OutputTokens).
		WithField("tool_count", rec.ToolCount).
		Debug("model CLI invocation finished")
	return rec, nil
}
