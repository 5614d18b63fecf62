package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillbench/pkg/snapshot"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func report(skill string, accuracy float64, at time.Time) *bench.Report {
	return &bench.Report{
		SkillID:   skill,
		Model:     "sonnet",
		Runs:      3,
		Timestamp: at,
		Metrics:   bench.BenchmarkMetrics{Accuracy: accuracy, TokensTotal: 900},
		Results:   []bench.TestResult{},
		Security:  &bench.SecurityScore{SecurityScore: 80, CategoryBreakdown: map[string]bench.CategoryScore{}},
	}
}

func save(t *testing.T, store *Store, r *bench.Report, withReport bool) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.New(r)
	require.NoError(t, err)
	if !withReport {
		r = nil
	}
	require.NoError(t, store.Save(context.Background(), snap, r))
	return snap
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("SKILLBENCH_HOME", "/custom/path")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/custom/path/history.db", path)

	t.Setenv("SKILLBENCH_HOME", "")
	path, err = DefaultPath()
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".skillbench", "history.db"), path)
}

func TestOpenConfiguresWAL(t *testing.T) {
	store := openTestStore(t)

	var mode string
	require.NoError(t, store.db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)

	var versions []int64
	require.NoError(t, store.db.Select(&versions, "SELECT version FROM schema_migrations ORDER BY version"))
	assert.Equal(t, []int64{20260301120000, 20260301120001, 20260315090000}, versions)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSaveAndGet(t *testing.T) {
	store := openTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := save(t, store, report("deploy", 82.5, at), true)

	got, err := store.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.True(t, snapshot.Verify(got))
	require.NotNil(t, got.SecurityScore)
	assert.Equal(t, 80.0, *got.SecurityScore)
	assert.Nil(t, got.TriggerScore)

	stored, err := store.Report(context.Background(), snap.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "deploy", stored.SkillID)
	assert.Equal(t, 82.5, stored.Metrics.Accuracy)

	_, err = store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = store.Report(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReportIsOptional(t *testing.T) {
	store := openTestStore(t)
	snap := save(t, store, report("deploy", 50, time.Now()), false)

	stored, err := store.Report(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestList(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	oldest := save(t, store, report("deploy", 60, base), false)
	newest := save(t, store, report("deploy", 80, base.Add(2*time.Hour)), false)
	middle := save(t, store, report("deploy", 70, base.Add(time.Hour)), false)
	other := save(t, store, report("lint", 90, base.Add(3*time.Hour)), false)

	all, err := store.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID, newest.ID, middle.ID, oldest.ID}, ids(all))

	deploy, err := store.List(context.Background(), "deploy", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, middle.ID}, ids(deploy))

	none, err := store.List(context.Background(), "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveRejectsDuplicateID(t *testing.T) {
	store := openTestStore(t)
	snap := save(t, store, report("deploy", 50, time.Now()), false)

	err := store.Save(context.Background(), snap, nil)
	assert.ErrorContains(t, err, "failed to save snapshot")
}

func ids(snaps []*snapshot.Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ID)
	}
	return out
}
