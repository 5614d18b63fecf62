// Package testdef reads benchmark test definitions from markdown files.
//
// A test file carries its metadata in YAML frontmatter and its prompt and
// pattern lists in level-two sections:
//
//	---
//	name: auth-basics
//	type: knowledge
//	concepts: [authentication, token refresh]
//	timeout: 90s
//	---
//	## Prompt
//	How does token refresh work?
//
//	## Expected
//	- [ ] mentions refresh tokens
//
// Security tests add category, severity and forbidden patterns; trigger
// tests list queries under "Positive Triggers" and "Negative Triggers".
package testdef

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/frontmatter"
	"github.com/jingkaihe/skillbench/pkg/scoring"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// DefaultTimeout applies to tests whose frontmatter sets no timeout
const DefaultTimeout = 2 * time.Minute

// header is the frontmatter of a test file. List fields may also be given
// as body sections; both sources are concatenated.
type header struct {
	Name              string        `mapstructure:"name"`
	Type              string        `mapstructure:"type"`
	Concepts          []string      `mapstructure:"concepts"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Expected          []string      `mapstructure:"expected"`
	Category          string        `mapstructure:"category"`
	Severity          string        `mapstructure:"severity"`
	ForbiddenPatterns []string      `mapstructure:"forbidden_patterns"`
	PositiveTriggers  []string      `mapstructure:"positive_triggers"`
	NegativeTriggers  []string      `mapstructure:"negative_triggers"`
}

// Parse reads the test definition at path
func Parse(path string) (bench.TestDefinition, error) {
	doc, err := frontmatter.ReadFile(path)
	if err != nil {
		return nil, err
	}

	def, err := fromDocument(doc)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	def.Base().SourcePath = path
	return def, nil
}

// ParseBytes parses a test definition held in memory
func ParseBytes(content []byte) (bench.TestDefinition, error) {
	doc, err := frontmatter.Parse(content)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

func fromDocument(doc *frontmatter.Document) (bench.TestDefinition, error) {
	if doc.Meta == nil {
		return nil, errors.New("missing frontmatter")
	}

	var h header
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &h,
		WeaklyTypedInput: true,
		DecodeHook:       secondsOrDurationHook,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(doc.Meta); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}

	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return nil, errors.New("test name is required in frontmatter")
	}

	typ := bench.TestType(strings.ToLower(strings.TrimSpace(h.Type)))
	if typ == "" {
		typ = bench.TestTypeKnowledge
	}
	def, err := bench.NewTestDefinition(typ)
	if err != nil {
		return nil, err
	}

	sections := splitSections(doc.Body)
	prompt, ok := sections["prompt"]
	if !ok {
		prompt = sections[""]
	}

	base := def.Base()
	base.Name = h.Name
	base.Prompt = strings.TrimSpace(prompt)
	base.Concepts = append(h.Concepts, listItems(sections["concepts"])...)
	base.Expected = append(h.Expected, lines(sections["expected"])...)
	base.Timeout = h.Timeout
	if base.Timeout <= 0 {
		base.Timeout = DefaultTimeout
	}

	switch t := def.(type) {
	case *bench.KnowledgeTest, *bench.TaskTest:
		if base.Prompt == "" {
			return nil, errors.Errorf("%s test %q has no prompt", typ, h.Name)
		}
	case *bench.SecurityTest:
		if base.Prompt == "" {
			return nil, errors.Errorf("security test %q has no prompt", h.Name)
		}
		t.Category = strings.TrimSpace(h.Category)
		if t.Category == "" {
			t.Category = "uncategorized"
		}
		t.Severity = strings.TrimSpace(h.Severity)
		t.ForbiddenPatterns = append(h.ForbiddenPatterns, listItems(sections["forbidden patterns"])...)
	case *bench.TriggerTest:
		t.PositiveTriggers = append(h.PositiveTriggers, listItems(sections["positive triggers"])...)
		t.NegativeTriggers = append(h.NegativeTriggers, listItems(sections["negative triggers"])...)
		if len(t.PositiveTriggers) == 0 {
			return nil, errors.Errorf("trigger test %q has no positive triggers", h.Name)
		}
	}

	return def, nil
}

// splitSections maps lowercased level-two headings to their raw content.
// Text before the first heading is stored under the empty key. Headings
// inside fenced code blocks are left alone.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	current := ""
	var buf strings.Builder
	inFence := false

	flush := func() {
		sections[current] += buf.String()
		buf.Reset()
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			flush()
			current = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()

	return sections
}

// lines returns the non-blank lines of a section, keeping list markup
func lines(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// listItems returns the non-blank lines of a section with list markup removed
func listItems(section string) []string {
	var out []string
	for _, line := range lines(section) {
		if item := strings.TrimSpace(scoring.StripListMarkup(line)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsOrDurationHook decodes timeouts given either as a Go duration
// string ("90s", "2m") or as a bare number of seconds
func secondsOrDurationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		v = strings.TrimSpace(v)
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid timeout %q", v)
		}
		return d, nil
	}
	return data, nil
}
