package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/scoring"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

var (
	colorGood  = lipgloss.Color("#2CD7C7")
	colorWarn  = lipgloss.Color("#F4D03F")
	colorBad   = lipgloss.Color("#E74C3C")
	colorMuted = lipgloss.Color("#6C7A89")
	colorFrame = lipgloss.Color("#16858E")
)

type consoleStyles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	box     lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
}

func newConsoleStyles(r *lipgloss.Renderer) consoleStyles {
	return consoleStyles{
		title:   r.NewStyle().Bold(true).Foreground(colorGood),
		heading: r.NewStyle().Bold(true).MarginTop(1),
		label:   r.NewStyle().Width(22),
		muted:   r.NewStyle().Foreground(colorMuted),
		good:    r.NewStyle().Foreground(colorGood),
		warn:    r.NewStyle().Foreground(colorWarn),
		bad:     r.NewStyle().Foreground(colorBad),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorFrame).Padding(0, 1),
		header:  r.NewStyle().Bold(true).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
	}
}

// score colours a 0-100 value: green from the pass threshold, amber from
// half of it and red below
func (s consoleStyles) score(v float64) string {
	text := pct(v)
	switch {
	case v >= bench.PassThreshold:
		return s.good.Render(text)
	case v >= bench.PassThreshold/2:
		return s.warn.Render(text)
	default:
		return s.bad.Render(text)
	}
}

func (s consoleStyles) row(label, value string) string {
	return s.label.Render(label) + value
}

// Console writes a terminal scorecard for the report. Colours are only
// emitted when w is a terminal that supports them.
func Console(w io.Writer, r *bench.Report) error {
	st := newConsoleStyles(lipgloss.NewRenderer(w))

	var sections []string

	header := []string{
		st.title.Render("Skill Benchmark: " + r.SkillID),
		st.muted.Render(fmt.Sprintf("model %s · %d run(s) per test · %s", orDash(r.Model), r.Runs, r.Timestamp.Local().Format("2006-01-02 15:04"))),
		"",
		st.row("Accuracy", st.score(r.Metrics.Accuracy)),
		st.row("Pass rate", st.score(r.PassRate)),
		st.row("Tokens (mean)", strconv.Itoa(r.Metrics.TokensTotal)),
		st.row("Tool calls (mean)", strconv.Itoa(r.Metrics.ToolCount)),
		st.row("Cost (mean)", usd(r.Metrics.CostUSD)),
		st.row("Duration (mean)", ms(r.Metrics.DurationMs)),
	}
	if r.FailedExecutions > 0 {
		header = append(header, st.row("Failed executions", strconv.Itoa(r.FailedExecutions)))
	}
	sections = append(sections, st.box.Render(strings.Join(header, "\n")))

	if perTest := scoring.MeanByTest(r.Results); len(perTest) > 0 {
		rows := make([][]string, 0, len(perTest))
		for _, t := range perTest {
			rows = append(rows, []string{
				t.Name(),
				string(t.Type()),
				pct(t.Metrics.Accuracy),
				strconv.Itoa(t.Metrics.TokensTotal),
				mark(t.Passed),
			})
		}
		tbl := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(st.muted).
			Headers("TEST", "TYPE", "ACCURACY", "TOKENS", "PASS").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return st.header
				}
				if col == 4 {
					if perTest[row].Passed {
						return st.cell.Foreground(colorGood)
					}
					return st.cell.Foreground(colorBad)
				}
				return st.cell
			})
		sections = append(sections, st.heading.Render("Results"), tbl.Render())
	}

	if s := r.Security; s != nil {
		sections = append(sections,
			st.heading.Render("Security"),
			st.row("Security score", st.score(s.SecurityScore)),
			st.row("Refusal rate", pct(s.RefusalRate)),
			st.row("Leakage rate", pct(s.LeakageRate)),
		)
		for _, l := range leakedPatterns(r.Results) {
			sections = append(sections, st.bad.Render(fmt.Sprintf("  leaked in %s: %s", l.test, strings.Join(l.patterns, ", "))))
		}
	}

	if t := r.Trigger; t != nil {
		sections = append(sections,
			st.heading.Render("Trigger Accuracy"),
			st.row("Trigger score", st.score(t.TriggerScore)),
			st.row("Trigger rate", pct(t.TriggerRate)),
			st.row("False positive rate", pct(t.FalsePositiveRate)),
		)
	}

	if c := r.Consistency; c != nil {
		sections = append(sections,
			st.heading.Render("Consistency"),
			st.row("Consistency score", st.score(c.ConsistencyScore)),
			st.row("Accuracy std dev", fmt.Sprintf("%.1f", c.AccuracyStdDev)),
			st.row("Concept overlap", pct(c.ConceptOverlap)),
		)
		if len(c.FlakyTests) > 0 {
			sections = append(sections, st.row("Flaky tests", st.warn.Render(strings.Join(c.FlakyTests, ", "))))
		}
	}

	if cmp := r.Baseline; cmp != nil && len(cmp.Tests) > 0 {
		d := cmp.AggregatedDelta
		sections = append(sections,
			st.heading.Render("Baseline Comparison"),
			st.row("Accuracy delta", signed(st, d.AccuracyDelta, "%+.1f")),
			st.row("Token reduction", signed(st, d.TokenReduction, "%+.1f%%")),
			st.row("Tool calls saved", signed(st, d.ToolCountDelta, "%+.1f")),
			st.row("Cost saved", signed(st, d.CostDelta, "%+.4f")),
		)
	}

	if _, err := io.WriteString(w, lipgloss.JoinVertical(lipgloss.Left, sections...)+"\n"); err != nil {
		return errors.Wrap(err, "failed to write scorecard")
	}
	return nil
}

func signed(st consoleStyles, v float64, format string) string {
	text := fmt.Sprintf(format, v)
	switch {
	case v > 0:
		return st.good.Render(text)
	case v < 0:
		return st.bad.Render(text)
	default:
		return text
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
