package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillbench/pkg/history"
	"github.com/jingkaihe/skillbench/pkg/presenter"
	"github.com/jingkaihe/skillbench/pkg/report"
	"github.com/jingkaihe/skillbench/pkg/snapshot"
)

// HistoryConfig holds configuration for the history command
type HistoryConfig struct {
	SkillID string
	Limit   int
}

// NewHistoryConfig creates a HistoryConfig with default values
func NewHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		SkillID: "",
		Limit:   20,
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved benchmark snapshots",
	Long: `List the snapshots saved with 'skillbench run --save', newest first.

Examples:
  skillbench history
  skillbench history --skill deploy --limit 5
  skillbench history show <id> --format markdown`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getHistoryConfigFromFlags(cmd)
		return withHistory(cmd.Context(), func(store *history.Store) error {
			snaps, err := store.List(cmd.Context(), config.SkillID, config.Limit)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				presenter.Info("No snapshots saved yet")
				return nil
			}
			return writeSnapshotList(cmd.OutOrStdout(), snaps)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved snapshot and its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		return withHistory(cmd.Context(), func(store *history.Store) error {
			return showSnapshot(cmd.Context(), cmd.OutOrStdout(), store, args[0], format)
		})
	},
}

func init() {
	defaults := NewHistoryConfig()
	historyCmd.Flags().StringP("skill", "s", defaults.SkillID, "Only list snapshots of this skill")
	historyCmd.Flags().IntP("limit", "l", defaults.Limit, "Maximum number of snapshots to list, 0 for all")
	historyShowCmd.Flags().String("format", string(report.FormatConsole), "Report format: console, markdown, json or yaml")

	historyCmd.AddCommand(historyShowCmd)
}

func getHistoryConfigFromFlags(cmd *cobra.Command) *HistoryConfig {
	config := NewHistoryConfig()
	if skill, err := cmd.Flags().GetString("skill"); err == nil {
		config.SkillID = skill
	}
	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = limit
	}
	return config
}

func withHistory(ctx context.Context, fn func(*history.Store) error) error {
	path, err := historyPath()
	if err != nil {
		return err
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func writeSnapshotList(out io.Writer, snaps []*snapshot.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSKILL\tMODEL\tRUNS\tACCURACY\tPASS RATE\tTOKENS\tTIMESTAMP\tVERIFIED")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f%%\t%.1f%%\t%d\t%s\t%s\n",
			s.ID, s.SkillID, s.Model, s.Runs, s.Accuracy, s.PassRate, s.TokensTotal,
			s.Timestamp.Format("2006-01-02 15:04:05"), yesNo(snapshot.Verify(s)))
	}
	return w.Flush()
}

func showSnapshot(ctx context.Context, out io.Writer, store *history.Store, id string, format report.Format) error {
	snap, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !snapshot.Verify(snap) {
		presenter.Warning(fmt.Sprintf("Snapshot %s does not match its content hash", id))
	}

	r, err := store.Report(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		presenter.Info(fmt.Sprintf("Snapshot %s was saved without a report", id))
		return writeSnapshotList(out, []*snapshot.Snapshot{snap})
	}
	return report.Render(out, format, r)
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
