package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillbench/pkg/executor"
	"github.com/jingkaihe/skillbench/pkg/history"
	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/presenter"
	"github.com/jingkaihe/skillbench/pkg/report"
	"github.com/jingkaihe/skillbench/pkg/runner"
	"github.com/jingkaihe/skillbench/pkg/skills"
	"github.com/jingkaihe/skillbench/pkg/snapshot"
	"github.com/jingkaihe/skillbench/pkg/testdef"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
	"github.com/jingkaihe/skillbench/pkg/usage"
)

// RunConfig holds configuration for the run command
type RunConfig struct {
	TestsDir     string
	Filters      []string
	Runs         int
	Concurrency  int
	Baseline     bool
	Model        string
	ProbeTimeout time.Duration
	Format       string
	Output       string
	Save         bool
	WorkDir      string
	SkillDirs    []string
	Executor     ExecutorConfig
	Scoring      ScoringConfig
}

// NewRunConfig creates a RunConfig from the loaded configuration
func NewRunConfig() *RunConfig {
	return &RunConfig{
		TestsDir:     viper.GetString("tests_dir"),
		Filters:      nil,
		Runs:         viper.GetInt("runs"),
		Concurrency:  viper.GetInt("concurrency"),
		Baseline:     viper.GetBool("baseline"),
		Model:        viper.GetString("model"),
		ProbeTimeout: viper.GetDuration("timeout"),
		Format:       string(report.FormatConsole),
		Output:       "",
		Save:         false,
		WorkDir:      "",
		SkillDirs:    nil,
		Executor:     NewExecutorConfig(),
		Scoring:      NewScoringConfig(),
	}
}

// Validate checks the RunConfig
func (c *RunConfig) Validate() error {
	if c.Runs < 1 {
		return errors.Errorf("runs must be at least 1, got %d", c.Runs)
	}
	if c.Concurrency < 1 {
		return errors.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		return err
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run <skill>",
	Short: "Benchmark a skill against a test suite",
	Long: `Run every test in the suite against the model CLI with the skill loaded and,
unless --no-baseline is given, once more without it. <skill> is a skill
directory, a SKILL.md file, or the name of a skill installed under
./.claude/skills or ~/.claude/skills.

Examples:
  skillbench run ./skills/deploy
  skillbench run deploy --tests ./skills/deploy/tests --runs 5
  skillbench run deploy --filter 'security-*' --no-baseline
  skillbench run deploy --format json --output results/deploy.json --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getRunConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			return err
		}
		return runBenchmark(cmd.Context(), args[0], config, cmd.OutOrStdout())
	},
}

func init() {
	addRunFlags(runCmd.Flags())
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.StringP("tests", "t", defaultTestsDir, "Directory containing test definitions")
	flags.StringSliceP("filter", "f", nil, "Only run tests whose name matches one of these glob patterns")
	flags.IntP("runs", "n", defaultRuns, "Number of runs per test")
	flags.IntP("concurrency", "c", defaultConcurrency, "Number of tests executed in parallel")
	flags.Bool("no-baseline", false, "Skip the runs without the skill")
	flags.String("format", string(report.FormatConsole), "Output format: console, markdown, json or yaml")
	flags.StringP("output", "o", "", "Write the report to this file; the format follows the extension")
	flags.Bool("save", false, "Save a snapshot of the run to the history database")
	flags.String("workdir", "", "Working directory for the model CLI")
	flags.StringSlice("skill-dir", nil, "Additional directories to look up skills by name")
}

// getRunConfigFromFlags overlays explicitly set flags on the configuration
func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	config := NewRunConfig()
	flags := cmd.Flags()

	if flags.Changed("tests") {
		config.TestsDir, _ = flags.GetString("tests")
	}
	if filters, err := flags.GetStringSlice("filter"); err == nil {
		config.Filters = filters
	}
	if flags.Changed("runs") {
		config.Runs, _ = flags.GetInt("runs")
	}
	if flags.Changed("concurrency") {
		config.Concurrency, _ = flags.GetInt("concurrency")
	}
	if noBaseline, err := flags.GetBool("no-baseline"); err == nil && noBaseline {
		config.Baseline = false
	}
	if format, err := flags.GetString("format"); err == nil {
		config.Format = format
	}
	if output, err := flags.GetString("output"); err == nil {
		config.Output = output
	}
	if save, err := flags.GetBool("save"); err == nil {
		config.Save = save
	}
	if workDir, err := flags.GetString("workdir"); err == nil {
		config.WorkDir = workDir
	}
	if dirs, err := flags.GetStringSlice("skill-dir"); err == nil {
		config.SkillDirs = dirs
	}

	return config
}

func resolveSkill(ref string, extraDirs []string) (*skills.Skill, error) {
	opts := []skills.Option{skills.WithDefaultDirs()}
	if len(extraDirs) > 0 {
		opts = append([]skills.Option{skills.WithSkillDirs(extraDirs...)}, opts...)
	}
	discovery, err := skills.NewDiscovery(opts...)
	if err != nil {
		return nil, err
	}
	return discovery.Resolve(ref)
}

func loadTests(dir string, filters []string) ([]bench.TestDefinition, error) {
	tests, err := testdef.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		tests, err = testdef.Filter(tests, filters...)
		if err != nil {
			return nil, err
		}
	}
	if len(tests) == 0 {
		return nil, errors.Errorf("no tests found in %s", dir)
	}
	return tests, nil
}

func runBenchmark(ctx context.Context, skillRef string, config *RunConfig, out io.Writer) error {
	skill, err := resolveSkill(skillRef, config.SkillDirs)
	if err != nil {
		return err
	}
	tests, err := loadTests(config.TestsDir, config.Filters)
	if err != nil {
		return err
	}
	scorer, err := newScorer(config.Scoring)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(config.Format)
	if err != nil {
		return err
	}

	ctx = logger.WithFields(ctx, map[string]any{"skill": skill.Name})
	exec := newExecutor(config.Executor, config.Model)

	presenter.Info(fmt.Sprintf("Benchmarking skill %q with %d tests, %d runs each (model %s)", skill.Name, len(tests), config.Runs, config.Model))

	stats := &presenter.RunStats{Tests: len(tests)}
	started := time.Now()
	r, err := runner.Run(ctx, runner.Options{
		Skill:       skill,
		Tests:       tests,
		Runs:        config.Runs,
		Concurrency: config.Concurrency,
		Baseline:    config.Baseline,
		Model:       config.Model,
		WorkDir:     config.WorkDir,
		Executor:    exec,
		Probe:       executor.NewProbe(exec, config.Model, config.ProbeTimeout),
		Scorer:      scorer,
		OnResult: func(result bench.TestResult, withSkill bool) {
			stats.Executions++
			if withSkill {
				stats.TokensTotal += result.Metrics.TokensTotal
				stats.CostUSD += result.Metrics.CostUSD
				stats.DurationMs += int64(result.Metrics.DurationMs)
			} else {
				stats.BaselineRuns++
			}
			if runner.Failed(result) {
				stats.Failures++
			}
			presenter.ReportProgress(presenter.Progress{
				Test:      result.Test.Base().Name,
				Type:      string(result.Test.Type()),
				Accuracy:  result.Metrics.Accuracy,
				Passed:    result.Passed,
				WithSkill: withSkill,
			})
		},
	})
	if err != nil {
		return err
	}
	stats.PassRate = r.PassRate
	usage.LogRunUsage(ctx, r, started)

	if err := report.Render(out, format, r); err != nil {
		return err
	}
	presenter.Stats(stats)

	if config.Output != "" {
		if err := report.WriteFile(config.Output, r); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Report written to %s", config.Output))
	}

	if config.Save {
		snap, err := saveSnapshot(ctx, r)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Snapshot %s saved", snap.ID))
	}

	return nil
}

func saveSnapshot(ctx context.Context, r *bench.Report) (*snapshot.Snapshot, error) {
	snap, err := snapshot.New(r)
	if err != nil {
		return nil, err
	}
	path, err := historyPath()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.Save(ctx, snap, r); err != nil {
		return nil, err
	}
	return snap, nil
}
