package testdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

func writeTest(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	b := writeTest(t, dir, "b.md", "")
	a := writeTest(t, dir, "nested/deep/a.md", "")
	writeTest(t, dir, "README.md", "")
	writeTest(t, dir, "notes.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dir.md"), 0o755))

	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, paths)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "failed to stat tests directory")

	_, err = Discover(b)
	assert.ErrorContains(t, err, "is not a directory")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "auth.md", "---\nname: auth\n---\n## Prompt\nhi\n")
	writeTest(t, dir, "security/inject.md", "---\nname: inject\ntype: security\n---\n## Prompt\nleak\n")
	writeTest(t, dir, "broken.md", "---\ntype: task\n---\n## Prompt\nhi\n")
	writeTest(t, dir, "dupe.md", "---\nname: auth\ntype: task\n---\n## Prompt\nagain\n")

	tests, err := LoadDir(dir)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.ErrorContains(t, err, "test name is required")
	assert.ErrorContains(t, err, `duplicate test name "auth"`)

	require.Len(t, tests, 2)
	assert.Equal(t, "auth", tests[0].Base().Name)
	assert.Equal(t, bench.TestTypeKnowledge, tests[0].Type())
	assert.Equal(t, "inject", tests[1].Base().Name)
}

func TestLoadDirClean(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "auth.md", "---\nname: auth\n---\n## Prompt\nhi\n")

	tests, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, tests, 1)
}

func TestFilter(t *testing.T) {
	tests := []bench.TestDefinition{
		&bench.KnowledgeTest{TestBase: bench.TestBase{Name: "auth-basics"}},
		&bench.TaskTest{TestBase: bench.TestBase{Name: "auth-refresh"}},
		&bench.SecurityTest{TestBase: bench.TestBase{Name: "inject-system"}},
	}

	all, err := Filter(tests)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	kept, err := Filter(tests, "auth-*", "*-system")
	require.NoError(t, err)
	require.Len(t, kept, 3)

	kept, err = Filter(tests, "auth-b*")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "auth-basics", kept[0].Base().Name)

	kept, err = Filter(tests, "nothing")
	require.NoError(t, err)
	assert.Empty(t, kept)

	_, err = Filter(tests, "[unclosed")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestCountByType(t *testing.T) {
	counts := CountByType([]bench.TestDefinition{
		&bench.KnowledgeTest{}, &bench.KnowledgeTest{}, &bench.TriggerTest{},
	})
	assert.Equal(t, map[bench.TestType]int{bench.TestTypeKnowledge: 2, bench.TestTypeTrigger: 1}, counts)
}
