package scoring

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFuzzyThreshold is the share of significant concept words that must
// appear in a response for a multi-word concept to match
const DefaultFuzzyThreshold = 0.8

// minSignificantWordLen is the length a concept word must exceed to take
// part in multi-word matching
const minSignificantWordLen = 2

// defaultAbbreviations maps a full term to the abbreviations it is commonly
// written as. The lookup is applied in both directions. It is only read;
// callers get copies through DefaultAbbreviations.
var defaultAbbreviations = map[string][]string{
	"configuration":  {"config", "cfg"},
	"authentication": {"auth", "authn"},
	"authorization":  {"authz"},
	"database":       {"db"},
	"application":    {"app"},
	"environment":    {"env"},
	"repository":     {"repo"},
	"directory":      {"dir"},
	"documentation":  {"docs", "doc"},
	"kubernetes":     {"k8s"},
	"javascript":     {"js"},
	"typescript":     {"ts"},
	"development":    {"dev"},
	"production":     {"prod"},
	"parameter":      {"param"},
	"argument":       {"arg"},
	"function":       {"func", "fn"},
	"message":        {"msg"},
	"request":        {"req"},
	"response":       {"resp"},
}

// DefaultAbbreviations returns a copy of the built-in abbreviation table
func DefaultAbbreviations() map[string][]string {
	return normalizeTable(defaultAbbreviations)
}

// Matcher decides whether a response mentions a concept. It holds no
// mutable state after construction and is safe for concurrent use.
type Matcher struct {
	abbreviations map[string][]string
}

// MatcherOption configures a Matcher
type MatcherOption func(*Matcher)

// WithAbbreviations replaces the abbreviation table. Keys and values are
// lowercased so the table lines up with case-normalized input.
func WithAbbreviations(table map[string][]string) MatcherOption {
	return func(m *Matcher) {
		m.abbreviations = normalizeTable(table)
	}
}

// NewMatcher creates a matcher using the built-in abbreviation table unless
// overridden
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{abbreviations: normalizeTable(defaultAbbreviations)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAbbreviations reads an abbreviation table from a YAML file of the form
// `term: [abbr, ...]`
func LoadAbbreviations(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read abbreviation file")
	}

	table := map[string][]string{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errors.Wrap(err, "failed to parse abbreviation file")
	}
	return table, nil
}

// Abbreviations returns a copy of the table the matcher uses
func (m *Matcher) Abbreviations() map[string][]string {
	return normalizeTable(m.abbreviations)
}

// Matches reports whether concept appears in response. Both strings are
// expected to be case-normalized by the caller. The checks run in order
// and stop at the first hit: direct containment, multi-word ratio, then
// rewritten variations of the concept.
func (m *Matcher) Matches(response, concept string, fuzzyThreshold float64) bool {
	if strings.Contains(response, concept) {
		return true
	}

	if words := significantWords(concept); len(words) >= 2 {
		found := 0
		for _, w := range words {
			if strings.Contains(response, w) {
				found++
			}
		}
		if float64(found)/float64(len(words)) >= fuzzyThreshold {
			return true
		}
	}

	for _, v := range m.variations(concept) {
		if strings.Contains(response, v) {
			return true
		}
	}

	return false
}

func significantWords(concept string) []string {
	var words []string
	for _, w := range strings.Fields(concept) {
		if utf8.RuneCountInString(w) > minSignificantWordLen {
			words = append(words, w)
		}
	}
	return words
}

// variations returns alternative spellings of concept: hyphen and space
// swapped, the plural toggled, and abbreviations expanded or contracted
func (m *Matcher) variations(concept string) []string {
	var out []string

	if strings.Contains(concept, "-") {
		out = append(out, strings.ReplaceAll(concept, "-", " "))
	}
	if strings.Contains(concept, " ") {
		out = append(out, strings.ReplaceAll(concept, " ", "-"))
	}

	if strings.HasSuffix(concept, "s") {
		out = append(out, strings.TrimSuffix(concept, "s"))
	} else {
		out = append(out, concept+"s")
	}

	for full, abbrs := range m.abbreviations {
		for _, abbr := range abbrs {
			if strings.Contains(concept, full) {
				out = append(out, strings.Replace(concept, full, abbr, 1))
			}
			if strings.Contains(concept, abbr) {
				out = append(out, strings.Replace(concept, abbr, full, 1))
			}
		}
	}

	return out
}

func normalizeTable(table map[string][]string) map[string][]string {
	out := make(map[string][]string, len(table))
	for full, abbrs := range table {
		key := strings.ToLower(strings.TrimSpace(full))
		if key == "" {
			continue
		}
		for _, a := range abbrs {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				out[key] = append(out[key], a)
			}
		}
	}
	return out
}
