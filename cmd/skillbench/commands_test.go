package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillbench/pkg/history"
	"github.com/jingkaihe/skillbench/pkg/report"
	"github.com/jingkaihe/skillbench/pkg/snapshot"
	"github.com/jingkaihe/skillbench/pkg/testdef"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
	"github.com/jingkaihe/skillbench/pkg/usage"
	"github.com/jingkaihe/skillbench/pkg/version"
)

func TestValidateTests(t *testing.T) {
	_, testsDir, _ := writeFixture(t)
	out := quietPresenter(t)

	tests, err := validateTests(testsDir)
	require.NoError(t, err)
	assert.Len(t, tests, 2)
	assert.Contains(t, out.String(), "2 tests valid in "+testsDir+" (1 knowledge, 1 security)")

	require.NoError(t, os.WriteFile(filepath.Join(testsDir, "broken.md"), []byte("no frontmatter here\n"), 0o644))
	_, err = validateTests(testsDir)
	assert.ErrorContains(t, err, "invalid test suite")
	assert.ErrorContains(t, err, "broken.md")
}

func TestGetValidateConfigFromFlags(t *testing.T) {
	cmd := newFlagCmd(addValidateFlags)
	require.NoError(t, cmd.Flags().Parse([]string{"-w", "--tests", "suite", "--debounce", "50ms"}))

	config := getValidateConfigFromFlags(cmd)
	assert.True(t, config.Watch)
	assert.Equal(t, "suite", config.TestsDir)
	assert.Equal(t, 50*time.Millisecond, config.Debounce)
}

func TestSuiteWatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))

	w, err := newSuiteWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx, 20*time.Millisecond, func() { changes.Add(1) })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "a.md"), []byte("---\nname: a\n---\nhi\n"), 0o644))

	assert.Eventually(t, func() bool { return changes.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWriteTestList(t *testing.T) {
	_, testsDir, _ := writeFixture(t)

	tests, err := testdef.LoadDir(testsDir)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeTestList(&out, tests))

	lines := strings.Split(out.String(), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out.String(), "pkce-flow")
	assert.Contains(t, out.String(), "2 concepts")
	assert.Contains(t, out.String(), "data-exfiltration, 1 forbidden")
	assert.Contains(t, out.String(), "2m0s")
	assert.Contains(t, out.String(), "2 tests (1 knowledge, 1 security)")
}

func TestTestDetail(t *testing.T) {
	trigger := &bench.TriggerTest{PositiveTriggers: []string{"a", "b"}, NegativeTriggers: []string{"c"}}
	assert.Equal(t, "2+ / 1-", testDetail(trigger))
	assert.Equal(t, "0 concepts", testDetail(&bench.TaskTest{}))
}

func TestHistoryCommands(t *testing.T) {
	out := quietPresenter(t)
	historyDB := filepath.Join(t.TempDir(), "history.db")
	viper.Set("history.path", historyDB)
	t.Cleanup(func() { viper.Set("history.path", "") })

	ctx := context.Background()
	r := &bench.Report{
		SkillID:   "oauth",
		Model:     "sonnet",
		Runs:      1,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Results:   []bench.TestResult{},
		Metrics:   bench.BenchmarkMetrics{Accuracy: 87.5, TokensTotal: 300},
		PassRate:  100,
	}
	saved, err := saveSnapshot(ctx, r)
	require.NoError(t, err)

	var list bytes.Buffer
	require.NoError(t, withHistory(ctx, func(store *history.Store) error {
		snaps, err := store.List(ctx, "oauth", 10)
		if err != nil {
			return err
		}
		return writeSnapshotList(&list, snaps)
	}))
	assert.Contains(t, list.String(), saved.ID)
	assert.Contains(t, list.String(), "87.5%")
	assert.Contains(t, list.String(), "2026-03-01 12:00:00")
	assert.Contains(t, list.String(), "yes")

	var shown bytes.Buffer
	require.NoError(t, withHistory(ctx, func(store *history.Store) error {
		return showSnapshot(ctx, &shown, store, saved.ID, report.FormatMarkdown)
	}))
	assert.Contains(t, shown.String(), "# Skill Benchmark: oauth")
	assert.NotContains(t, out.String(), "does not match")

	err = withHistory(ctx, func(store *history.Store) error {
		return showSnapshot(ctx, &shown, store, "missing", report.FormatJSON)
	})
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestShowSnapshotWithoutReport(t *testing.T) {
	out := quietPresenter(t)
	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	snap, err := snapshot.New(&bench.Report{SkillID: "oauth", Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snap, nil))

	var shown bytes.Buffer
	require.NoError(t, showSnapshot(ctx, &shown, store, snap.ID, report.FormatConsole))
	assert.Contains(t, shown.String(), snap.ID)
	assert.Contains(t, out.String(), "saved without a report")
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	schemaCmd.SetOut(&out)
	t.Cleanup(func() { schemaCmd.SetOut(nil) })

	require.NoError(t, schemaCmd.RunE(schemaCmd, []string{"snapshot"}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Contains(t, decoded["properties"], "contentHash")

	assert.Error(t, schemaCmd.RunE(schemaCmd, []string{"nope"}))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestRunUsage(t *testing.T) {
	quietPresenter(t)
	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	m := bench.BenchmarkMetrics{TokensTotal: 1500, CostUSD: 0.02}
	for _, r := range []*bench.Report{
		{SkillID: "oauth", Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), Results: []bench.TestResult{{Test: &bench.KnowledgeTest{}, Metrics: m}}},
		{SkillID: "oauth", Timestamp: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC), Results: []bench.TestResult{{Test: &bench.KnowledgeTest{}, Metrics: m}, {Test: &bench.KnowledgeTest{}, Metrics: m}}},
		{SkillID: "deploy", Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), Results: []bench.TestResult{{Test: &bench.KnowledgeTest{}, Metrics: m}}},
	} {
		snap, err := snapshot.New(r)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, snap, r))
	}
	now := func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }

	var table bytes.Buffer
	require.NoError(t, runUsage(ctx, &table, store, NewUsageConfig(), now))
	assert.Contains(t, table.String(), "2026-03-12")
	assert.Contains(t, table.String(), "2026-03-10")
	assert.NotContains(t, table.String(), "2026-01-01")
	assert.Contains(t, table.String(), "4,500")
	assert.Contains(t, table.String(), "$0.0600")

	var out bytes.Buffer
	config := NewUsageConfig()
	config.Since = ""
	config.Format = "json"
	require.NoError(t, runUsage(ctx, &out, store, config, now))

	var stats usage.Stats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total.Runs)
	assert.Equal(t, 4, stats.Total.Executions)
	assert.Equal(t, 6000, stats.Total.Tokens)
	assert.Equal(t, 1, stats.BySkill["deploy"].Runs)

	config.Format = "csv"
	assert.ErrorContains(t, runUsage(ctx, &out, store, config, now), "unknown usage format")
}

func TestGetUsageConfigFromFlags(t *testing.T) {
	cmd := newFlagCmd(addUsageFlags)
	require.NoError(t, cmd.Flags().Parse([]string{"--since", "1w", "--skill", "oauth", "--format", "json"}))

	config := getUsageConfigFromFlags(cmd)
	assert.Equal(t, &UsageConfig{Since: "1w", SkillID: "oauth", Format: "json"}, config)
}
