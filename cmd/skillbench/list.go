package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// ListConfig holds configuration for the list command
type ListConfig struct {
	TestsDir string
	Filters  []string
}

// NewListConfig creates a ListConfig with default values
func NewListConfig() *ListConfig {
	return &ListConfig{
		TestsDir: viper.GetString("tests_dir"),
		Filters:  nil,
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tests of a suite",
	Long:  `List the tests of a suite with their type, timeout and source file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getListConfigFromFlags(cmd)
		tests, err := loadTests(config.TestsDir, config.Filters)
		if err != nil {
			return err
		}
		return writeTestList(cmd.OutOrStdout(), tests)
	},
}

func init() {
	addListFlags(listCmd.Flags())
}

func addListFlags(flags *pflag.FlagSet) {
	flags.StringP("tests", "t", defaultTestsDir, "Directory containing test definitions")
	flags.StringSliceP("filter", "f", nil, "Only list tests whose name matches one of these glob patterns")
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	config := NewListConfig()
	if cmd.Flags().Changed("tests") {
		config.TestsDir, _ = cmd.Flags().GetString("tests")
	}
	if filters, err := cmd.Flags().GetStringSlice("filter"); err == nil {
		config.Filters = filters
	}
	return config
}

func writeTestList(out io.Writer, tests []bench.TestDefinition) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tDETAIL\tTIMEOUT\tSOURCE")
	for _, t := range tests {
		base := t.Base()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", base.Name, t.Type(), testDetail(t), base.Timeout, base.SourcePath)
	}
	fmt.Fprintf(w, "\n%d tests%s\n", len(tests), typeSummary(tests))
	return w.Flush()
}

// testDetail is the size of what a test checks, by variant
func testDetail(t bench.TestDefinition) string {
	switch t := t.(type) {
	case *bench.KnowledgeTest:
		return fmt.Sprintf("%d concepts", len(t.Concepts))
	case *bench.TaskTest:
		return fmt.Sprintf("%d concepts", len(t.Concepts))
	case *bench.SecurityTest:
		return fmt.Sprintf("%s, %d forbidden", t.Category, len(t.ForbiddenPatterns))
	case *bench.TriggerTest:
		return fmt.Sprintf("%d+ / %d-", len(t.PositiveTriggers), len(t.NegativeTriggers))
	default:
		return "-"
	}
}
