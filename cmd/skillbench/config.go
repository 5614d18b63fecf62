package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillbench/pkg/executor"
	"github.com/jingkaihe/skillbench/pkg/history"
	"github.com/jingkaihe/skillbench/pkg/scoring"
)

const (
	defaultModel       = "sonnet"
	defaultRuns        = 3
	defaultConcurrency = 4
	defaultTestsDir    = "tests"
	defaultMinScore    = 80.0
)

func setDefaults() {
	viper.SetDefault("model", defaultModel)
	viper.SetDefault("runs", defaultRuns)
	viper.SetDefault("concurrency", defaultConcurrency)
	viper.SetDefault("timeout", executor.DefaultTimeout)
	viper.SetDefault("baseline", true)
	viper.SetDefault("tests_dir", defaultTestsDir)

	viper.SetDefault("cli.binary", executor.DefaultBinary)
	viper.SetDefault("cli.args", []string{})
	viper.SetDefault("cli.retry_attempts", executor.DefaultRetryAttempts)
	viper.SetDefault("cli.retry_delay", time.Second)

	viper.SetDefault("matcher.fuzzy_threshold", scoring.DefaultFuzzyThreshold)
	viper.SetDefault("matcher.abbreviations_file", "")

	viper.SetDefault("policy.security_min_score", defaultMinScore)
	viper.SetDefault("policy.trigger_min_score", defaultMinScore)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.sampler", "always")
	viper.SetDefault("tracing.ratio", 1.0)
	viper.SetDefault("tracing.batch_timeout", time.Second)

	viper.SetDefault("history.path", "")
}

// ScoringConfig holds the knobs of the response scorer
type ScoringConfig struct {
	FuzzyThreshold    float64
	Abbreviations     map[string][]string
	AbbreviationsFile string
	SecurityMinScore  float64
	TriggerMinScore   float64
}

// NewScoringConfig reads the scoring configuration from viper
func NewScoringConfig() ScoringConfig {
	return ScoringConfig{
		FuzzyThreshold:    viper.GetFloat64("matcher.fuzzy_threshold"),
		Abbreviations:     viper.GetStringMapStringSlice("matcher.abbreviations"),
		AbbreviationsFile: viper.GetString("matcher.abbreviations_file"),
		SecurityMinScore:  viper.GetFloat64("policy.security_min_score"),
		TriggerMinScore:   viper.GetFloat64("policy.trigger_min_score"),
	}
}

// newScorer builds the scorer. Abbreviations from the file and the config
// are layered over the built-in table, config entries last.
func newScorer(config ScoringConfig) (*scoring.Scorer, error) {
	table := scoring.NewMatcher().Abbreviations()
	if config.AbbreviationsFile != "" {
		loaded, err := scoring.LoadAbbreviations(config.AbbreviationsFile)
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			table[k] = v
		}
	}
	for k, v := range config.Abbreviations {
		table[k] = v
	}

	return scoring.New(
		scoring.WithMatcher(scoring.NewMatcher(scoring.WithAbbreviations(table))),
		scoring.WithFuzzyThreshold(config.FuzzyThreshold),
		scoring.WithSecurityPassPolicy(scoring.MinScore(config.SecurityMinScore)),
		scoring.WithTriggerPassPolicy(scoring.MinScore(config.TriggerMinScore)),
	), nil
}

// ExecutorConfig holds the model CLI settings
type ExecutorConfig struct {
	Binary        string
	Args          []string
	RetryAttempts int
	RetryDelay    time.Duration
}

// NewExecutorConfig reads the cli.* keys from viper
func NewExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Binary:        viper.GetString("cli.binary"),
		Args:          viper.GetStringSlice("cli.args"),
		RetryAttempts: viper.GetInt("cli.retry_attempts"),
		RetryDelay:    viper.GetDuration("cli.retry_delay"),
	}
}

func newExecutor(config ExecutorConfig, model string) *executor.Executor {
	return executor.New(executor.Config{
		Binary:        config.Binary,
		ExtraArgs:     config.Args,
		Model:         model,
		RetryAttempts: config.RetryAttempts,
		RetryDelay:    config.RetryDelay,
	})
}

// historyPath resolves history.path, falling back to the default location
func historyPath() (string, error) {
	if path := viper.GetString("history.path"); path != "" {
		return path, nil
	}
	path, err := history.DefaultPath()
	return path, errors.Wrap(err, "failed to resolve history path")
}
