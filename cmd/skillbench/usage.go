package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jingkaihe/skillbench/pkg/history"
	"github.com/jingkaihe/skillbench/pkg/presenter"
	"github.com/jingkaihe/skillbench/pkg/usage"
)

// UsageConfig holds configuration for the usage command
type UsageConfig struct {
	Since   string
	Until   string
	SkillID string
	Format  string
}

// NewUsageConfig creates a new UsageConfig with default values
func NewUsageConfig() *UsageConfig {
	return &UsageConfig{
		Since:   "10d",
		Until:   "",
		SkillID: "",
		Format:  "table",
	}
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage and cost of saved benchmark runs",
	Long: `Show the tokens and cost spent on benchmark runs saved with --save, broken
down by day and by skill. Baseline executions are included.

Examples:
  skillbench usage                              # Past 10 days
  skillbench usage --since 2026-03-01           # Since specific date
  skillbench usage --since 1w --until 2026-03-10
  skillbench usage --skill oauth --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getUsageConfigFromFlags(cmd)
		return withHistory(cmd.Context(), func(store *history.Store) error {
			return runUsage(cmd.Context(), cmd.OutOrStdout(), store, config, time.Now)
		})
	},
}

func init() {
	addUsageFlags(usageCmd.Flags())
}

func addUsageFlags(flags *pflag.FlagSet) {
	defaults := NewUsageConfig()
	flags.String("since", defaults.Since, "Show usage since this time (e.g., 2026-03-01, 12h, 1d, 1w)")
	flags.String("until", defaults.Until, "Show usage until this time (e.g., 2026-03-01)")
	flags.StringP("skill", "s", defaults.SkillID, "Only count runs of this skill")
	flags.String("format", defaults.Format, "Output format: table or json")
}

func getUsageConfigFromFlags(cmd *cobra.Command) *UsageConfig {
	config := NewUsageConfig()
	if since, err := cmd.Flags().GetString("since"); err == nil {
		config.Since = since
	}
	if until, err := cmd.Flags().GetString("until"); err == nil {
		config.Until = until
	}
	if skill, err := cmd.Flags().GetString("skill"); err == nil {
		config.SkillID = skill
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

func runUsage(ctx context.Context, out io.Writer, store *history.Store, config *UsageConfig, now func() time.Time) error {
	if config.Format != "table" && config.Format != "json" {
		return errors.Errorf("unknown usage format %q, expected table or json", config.Format)
	}

	start, err := usage.ParseTimeSpec(config.Since, now)
	if err != nil {
		return err
	}
	if !start.IsZero() {
		start = start.Truncate(24 * time.Hour)
	}
	end, err := usage.ParseTimeSpec(config.Until, now)
	if err != nil {
		return err
	}
	if !end.IsZero() {
		end = end.Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)
	}

	snaps, err := store.List(ctx, config.SkillID, 0)
	if err != nil {
		return err
	}

	entries := make([]usage.Entry, 0, len(snaps))
	for _, snap := range snaps {
		r, err := store.Report(ctx, snap.ID)
		if err != nil {
			return err
		}
		if r == nil {
			// no report to count executions from
			entries = append(entries, usage.Entry{SkillID: snap.SkillID, Timestamp: snap.Timestamp})
			continue
		}
		entries = append(entries, usage.FromReport(r))
	}

	stats := usage.Calculate(entries, start, end)
	if config.Format == "json" {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode usage")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if stats.Total.Runs == 0 {
		presenter.Info("No saved runs found in the specified time range.")
		return nil
	}
	return writeUsageTable(out, stats)
}

func writeUsageTable(out io.Writer, stats *usage.Stats) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tRUNS\tEXECUTIONS\tTOKENS\tCOST")
	for _, day := range stats.Daily {
		writeUsageRow(w, day.Date.Format("2006-01-02"), day.Usage)
	}
	writeUsageRow(w, "TOTAL", stats.Total)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "SKILL\tRUNS\tEXECUTIONS\tTOKENS\tCOST")
	skills := make([]string, 0, len(stats.BySkill))
	for skill := range stats.BySkill {
		skills = append(skills, skill)
	}
	sort.Strings(skills)
	for _, skill := range skills {
		writeUsageRow(w, skill, *stats.BySkill[skill])
	}
	return w.Flush()
}

func writeUsageRow(w io.Writer, label string, u usage.Usage) {
	fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", label, u.Runs, usage.FormatNumber(u.Executions), usage.FormatNumber(u.Tokens), usage.FormatCost(u.CostUSD))
}
