// Package report renders benchmark reports as markdown, as a terminal
// scorecard and as JSON or YAML files.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jingkaihe/skillbench/pkg/scoring"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Markdown renders the report as a markdown document
func Markdown(r *bench.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Skill Benchmark: %s\n\n", r.SkillID)
	if r.SkillDescription != "" {
		fmt.Fprintf(&b, "> %s\n\n", r.SkillDescription)
	}
	fmt.Fprintf(&b, "- **Model:** %s\n", orDash(r.Model))
	fmt.Fprintf(&b, "- **Runs per test:** %d\n", r.Runs)
	fmt.Fprintf(&b, "- **Timestamp:** %s\n\n", r.Timestamp.UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Accuracy | %s |\n", pct(r.Metrics.Accuracy))
	fmt.Fprintf(&b, "| Pass rate | %s |\n", pct(r.PassRate))
	fmt.Fprintf(&b, "| Tokens (mean) | %d |\n", r.Metrics.TokensTotal)
	fmt.Fprintf(&b, "| Tool calls (mean) | %d |\n", r.Metrics.ToolCount)
	fmt.Fprintf(&b, "| Cost (mean) | %s |\n", usd(r.Metrics.CostUSD))
	fmt.Fprintf(&b, "| Duration (mean) | %s |\n", ms(r.Metrics.DurationMs))
	if r.FailedExecutions > 0 {
		fmt.Fprintf(&b, "| Failed executions | %d |\n", r.FailedExecutions)
	}
	b.WriteString("\n")

	perTest := scoring.MeanByTest(r.Results)
	if len(perTest) > 0 {
		b.WriteString("## Results\n\n")
		b.WriteString("| Test | Type | Accuracy | Tokens | Tools | Passed |\n|---|---|---|---|---|---|\n")
		for _, t := range perTest {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %s |\n",
				cell(t.Name()), t.Type(), pct(t.Metrics.Accuracy), t.Metrics.TokensTotal, t.Metrics.ToolCount, check(t.Passed))
		}
		b.WriteString("\n")

		var misses strings.Builder
		for _, t := range perTest {
			var missed []string
			for _, m := range t.MissedConcepts {
				if !strings.HasPrefix(m, bench.LeakedMarker) {
					missed = append(missed, m)
				}
			}
			if len(missed) > 0 {
				fmt.Fprintf(&misses, "- **%s:** %s\n", t.Name(), strings.Join(missed, ", "))
			}
		}
		if misses.Len() > 0 {
			b.WriteString("### Missed\n\n")
			b.WriteString(misses.String())
			b.WriteString("\n")
		}
	}

	if s := r.Security; s != nil {
		writeSecurity(&b, s, r.Results)
	}
	if t := r.Trigger; t != nil {
		writeTrigger(&b, t)
	}
	if c := r.Consistency; c != nil {
		b.WriteString("## Consistency\n\n")
		fmt.Fprintf(&b, "- **Consistency score:** %s\n", pct(c.ConsistencyScore))
		fmt.Fprintf(&b, "- **Accuracy std dev:** %.1f\n", c.AccuracyStdDev)
		fmt.Fprintf(&b, "- **Accuracy range:** %.1f\n", c.AccuracyRange)
		fmt.Fprintf(&b, "- **Concept overlap:** %s\n", pct(c.ConceptOverlap))
		if len(c.FlakyTests) > 0 {
			fmt.Fprintf(&b, "- **Flaky tests:** %s\n", strings.Join(c.FlakyTests, ", "))
		}
		b.WriteString("\n")
	}
	if cmp := r.Baseline; cmp != nil {
		writeBaseline(&b, cmp)
	}

	return b.String()
}

func writeSecurity(b *strings.Builder, s *bench.SecurityScore, results []bench.TestResult) {
	b.WriteString("## Security\n\n")
	fmt.Fprintf(b, "- **Security score:** %s\n", pct(s.SecurityScore))
	fmt.Fprintf(b, "- **Refusal rate:** %s\n", pct(s.RefusalRate))
	fmt.Fprintf(b, "- **Leakage rate:** %s\n\n", pct(s.LeakageRate))

	categories := make([]string, 0, len(s.CategoryBreakdown))
	for c := range s.CategoryBreakdown {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	b.WriteString("| Category | Refusal | Leakage | Runs |\n|---|---|---|---|\n")
	for _, c := range categories {
		cs := s.CategoryBreakdown[c]
		fmt.Fprintf(b, "| %s | %s | %s | %d |\n", cell(c), pct(cs.RefusalRate), pct(cs.LeakageRate), cs.TestsRun)
	}
	b.WriteString("\n")

	leaks := leakedPatterns(results)
	if len(leaks) > 0 {
		b.WriteString("### Leaked patterns\n\n")
		for _, l := range leaks {
			fmt.Fprintf(b, "- **%s:** %s\n", l.test, strings.Join(l.patterns, ", "))
		}
		b.WriteString("\n")
	}
}

func writeTrigger(b *strings.Builder, t *bench.TriggerScore) {
	b.WriteString("## Trigger Accuracy\n\n")
	fmt.Fprintf(b, "- **Trigger score:** %s\n", pct(t.TriggerScore))
	fmt.Fprintf(b, "- **Trigger rate:** %s\n", pct(t.TriggerRate))
	fmt.Fprintf(b, "- **False positive rate:** %s\n\n", pct(t.FalsePositiveRate))

	if len(t.QueryResults) == 0 {
		return
	}
	b.WriteString("| Query | Expected | Actual | Tools | Correct |\n|---|---|---|---|---|\n")
	for _, q := range t.QueryResults {
		fmt.Fprintf(b, "| %s | %s | %s | %d | %s |\n", cell(q.Query), q.Expected, q.Actual, q.ToolCount, check(q.Correct))
	}
	b.WriteString("\n")
}

func writeBaseline(b *strings.Builder, cmp *bench.BaselineComparison) {
	b.WriteString("## Baseline Comparison\n\n")
	if len(cmp.Tests) == 0 {
		b.WriteString("No knowledge or task tests to compare.\n\n")
		return
	}

	b.WriteString("| Test | Accuracy | Token reduction | Tool calls saved | Cost saved | Time saved |\n|---|---|---|---|---|---|\n")
	for _, d := range cmp.Tests {
		writeDeltaRow(b, cell(d.TestName), d)
	}
	writeDeltaRow(b, "**Mean**", cmp.AggregatedDelta)
	b.WriteString("\n")
}

func writeDeltaRow(b *strings.Builder, name string, d bench.BaselineDelta) {
	fmt.Fprintf(b, "| %s | %+.1f | %+.1f%% | %+.1f | %+.4f | %+.0fms |\n",
		name, d.AccuracyDelta, d.TokenReduction, d.ToolCountDelta, d.CostDelta, d.DurationDelta)
}

type leak struct {
	test     string
	patterns []string
}

// leakedPatterns lists the distinct leaked patterns per security test, in
// result order
func leakedPatterns(results []bench.TestResult) []leak {
	var out []leak
	index := make(map[string]int)
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Type() != bench.TestTypeSecurity {
			continue
		}
		for _, m := range r.MissedConcepts {
			pattern, ok := strings.CutPrefix(m, bench.LeakedMarker)
			if !ok || seen[r.Name()+"\x00"+pattern] {
				continue
			}
			seen[r.Name()+"\x00"+pattern] = true
			i, ok := index[r.Name()]
			if !ok {
				i = len(out)
				index[r.Name()] = i
				out = append(out, leak{test: r.Name()})
			}
			out[i].patterns = append(out[i].patterns, pattern)
		}
	}
	return out
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func usd(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func ms(v int) string {
	return (time.Duration(v) * time.Millisecond).String()
}

func check(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
