package testdef

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Pattern selects test files below the tests directory
const Pattern = "**/*.md"

// Discover returns the sorted paths of all test files below dir. README
// files are skipped.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat tests directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrap(err, "failed to glob test files")
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.EqualFold(filepath.Base(m), "README.md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDir parses every test file below dir. Files that fail to parse are
// reported together in the returned error, which is a *multierror.Error;
// the tests that did parse are returned alongside it. Duplicate test names
// are reported as errors and only the first definition is kept.
func LoadDir(dir string) ([]bench.TestDefinition, error) {
	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	var (
		tests  []bench.TestDefinition
		result *multierror.Error
		seen   = make(map[string]string)
	)
	for _, path := range paths {
		def, err := Parse(path)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		name := def.Base().Name
		if first, dup := seen[name]; dup {
			result = multierror.Append(result, errors.Errorf("%s: duplicate test name %q, first defined in %s", path, name, first))
			continue
		}
		seen[name] = path
		tests = append(tests, def)
	}

	return tests, result.ErrorOrNil()
}

// Filter keeps the tests whose name matches at least one glob pattern. No
// patterns keeps every test.
func Filter(tests []bench.TestDefinition, patterns ...string) ([]bench.TestDefinition, error) {
	if len(patterns) == 0 {
		return tests, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid filter pattern %q", p)
		}
		globs = append(globs, g)
	}

	var kept []bench.TestDefinition
	for _, t := range tests {
		for _, g := range globs {
			if g.Match(t.Base().Name) {
				kept = append(kept, t)
				break
			}
		}
	}
	return kept, nil
}

// CountByType tallies tests per type
func CountByType(tests []bench.TestDefinition) map[bench.TestType]int {
	counts := make(map[bench.TestType]int)
	for _, t := range tests {
		counts[t.Type()]++
	}
	return counts
}
