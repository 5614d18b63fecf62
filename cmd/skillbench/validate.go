package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/presenter"
	"github.com/jingkaihe/skillbench/pkg/testdef"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// ValidateConfig holds configuration for the validate command
type ValidateConfig struct {
	TestsDir string
	Watch    bool
	Debounce time.Duration
}

// NewValidateConfig creates a ValidateConfig with default values
func NewValidateConfig() *ValidateConfig {
	return &ValidateConfig{
		TestsDir: viper.GetString("tests_dir"),
		Watch:    false,
		Debounce: 300 * time.Millisecond,
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse every test definition and report errors",
	Long: `Parse every test definition in the tests directory and report the problems
found. With --watch the suite is validated again whenever a file changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getValidateConfigFromFlags(cmd)
		if !config.Watch {
			_, err := validateTests(config.TestsDir)
			return err
		}
		return runValidateWatch(cmd.Context(), config)
	},
}

func init() {
	addValidateFlags(validateCmd.Flags())
}

func addValidateFlags(flags *pflag.FlagSet) {
	defaults := NewValidateConfig()
	flags.StringP("tests", "t", defaultTestsDir, "Directory containing test definitions")
	flags.BoolP("watch", "w", defaults.Watch, "Validate again whenever a test file changes")
	flags.Duration("debounce", defaults.Debounce, "Quiet period before validating after a change")
}

func getValidateConfigFromFlags(cmd *cobra.Command) *ValidateConfig {
	config := NewValidateConfig()
	if cmd.Flags().Changed("tests") {
		config.TestsDir, _ = cmd.Flags().GetString("tests")
	}
	if watch, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = watch
	}
	if debounce, err := cmd.Flags().GetDuration("debounce"); err == nil {
		config.Debounce = debounce
	}
	return config
}

// validateTests loads the suite and prints a per-type summary
func validateTests(dir string) ([]bench.TestDefinition, error) {
	tests, err := testdef.LoadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid test suite %s", dir)
	}

	presenter.Success(fmt.Sprintf("%d tests valid in %s%s", len(tests), dir, typeSummary(tests)))
	return tests, nil
}

func typeSummary(tests []bench.TestDefinition) string {
	counts := testdef.CountByType(tests)
	if len(counts) == 0 {
		return ""
	}

	parts := make([]string, 0, len(counts))
	for t, n := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, t))
	}
	sort.Strings(parts)
	return " (" + strings.Join(parts, ", ") + ")"
}

func runValidateWatch(ctx context.Context, config *ValidateConfig) error {
	w, err := newSuiteWatcher(config.TestsDir)
	if err != nil {
		return err
	}
	defer w.Close()

	report := func() {
		if _, err := validateTests(config.TestsDir); err != nil {
			presenter.Error(err, "")
		}
	}
	report()
	presenter.Info(fmt.Sprintf("Watching %s for changes... Press Ctrl+C to stop", config.TestsDir))

	w.run(ctx, config.Debounce, report)
	return nil
}

// suiteWatcher watches a test directory tree for markdown changes
type suiteWatcher struct {
	*fsnotify.Watcher
}

func newSuiteWatcher(dir string) (*suiteWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	w := &suiteWatcher{Watcher: watcher}
	if err := w.addTree(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *suiteWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return errors.Wrapf(w.Add(path), "failed to watch %s", path)
	})
}

// run calls onChange once per burst of markdown changes, after debounce of
// quiet, until ctx is done
func (w *suiteWatcher) run(ctx context.Context, debounce time.Duration, onChange func()) {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if err := w.addTree(event.Name); err != nil {
					logger.G(ctx).WithError(err).Debug("not watching new path")
				}
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			logger.G(ctx).WithField("file", event.Name).WithField("operation", event.Op.String()).Debug("test file changed")
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("file watcher error")
		case <-timer.C:
			onChange()
		}
	}
}
