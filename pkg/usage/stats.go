// Package usage accounts for the tokens and cost spent on benchmark runs,
// with daily and per-skill breakdowns over the saved history.
package usage

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/logger"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Entry is the usage of one benchmark run
type Entry struct {
	SkillID    string
	Timestamp  time.Time
	Executions int
	Tokens     int
	CostUSD    float64
}

// FromReport sums the usage of every execution in a report, baseline runs
// included
func FromReport(r *bench.Report) Entry {
	e := Entry{SkillID: r.SkillID, Timestamp: r.Timestamp}
	for _, results := range [][]bench.TestResult{r.Results, r.BaselineResults} {
		for _, res := range results {
			e.Executions++
			e.Tokens += res.Metrics.TokensTotal
			e.CostUSD += res.Metrics.CostUSD
		}
	}
	return e
}

// Usage is accumulated usage over a set of runs
type Usage struct {
	Runs       int     `json:"runs"`
	Executions int     `json:"executions"`
	Tokens     int     `json:"tokens"`
	CostUSD    float64 `json:"costUsd"`
}

func (u *Usage) add(e Entry) {
	u.Runs++
	u.Executions += e.Executions
	u.Tokens += e.Tokens
	u.CostUSD += e.CostUSD
}

// DailyUsage is the usage of a single UTC day
type DailyUsage struct {
	Date time.Time `json:"date"`
	Usage
}

// Stats is usage with daily and per-skill breakdowns
type Stats struct {
	Daily   []DailyUsage      `json:"daily"`
	BySkill map[string]*Usage `json:"bySkill"`
	Total   Usage             `json:"total"`
}

// Calculate aggregates the entries within [start, end]. Zero bounds are
// open. Days are sorted newest first.
func Calculate(entries []Entry, start, end time.Time) *Stats {
	stats := &Stats{Daily: []DailyUsage{}, BySkill: map[string]*Usage{}}
	daily := map[time.Time]*DailyUsage{}

	for _, e := range entries {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}

		date := e.Timestamp.UTC().Truncate(24 * time.Hour)
		day, ok := daily[date]
		if !ok {
			day = &DailyUsage{Date: date}
			daily[date] = day
		}
		day.add(e)

		skill, ok := stats.BySkill[e.SkillID]
		if !ok {
			skill = &Usage{}
			stats.BySkill[e.SkillID] = skill
		}
		skill.add(e)

		stats.Total.add(e)
	}

	for _, day := range daily {
		stats.Daily = append(stats.Daily, *day)
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date.After(stats.Daily[j].Date)
	})
	return stats
}

var relativeSpec = regexp.MustCompile(`^(\d+)([hdw])$`)

// ParseTimeSpec parses an absolute date (2026-03-01) or a relative span
// back from now (12h, 10d, 2w). An empty spec is the zero time.
func ParseTimeSpec(spec string, now func() time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", spec); err == nil {
		return t, nil
	}

	matches := relativeSpec.FindStringSubmatch(spec)
	if matches == nil {
		return time.Time{}, errors.Errorf("invalid time specification: %s (expected format: YYYY-MM-DD, 12h, 1d, 1w)", spec)
	}
	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid number in time specification %s", spec)
	}

	switch matches[2] {
	case "h":
		return now().Add(-time.Duration(amount) * time.Hour), nil
	case "d":
		return now().AddDate(0, 0, -amount), nil
	default:
		return now().AddDate(0, 0, -amount*7), nil
	}
}

// FormatNumber formats large numbers with commas for readability
func FormatNumber(n int) string {
	str := strconv.Itoa(n)
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}
	if len(str) <= 3 {
		return sign + str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return sign + result.String()
}

// FormatCost formats a cost as dollars with 4 decimal places
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}

func roundToFourDecimalPlaces(value float64) float64 {
	return math.Round(value*10000) / 10000
}

// LogRunUsage logs the usage of a finished benchmark run
func LogRunUsage(ctx context.Context, r *bench.Report, started time.Time) {
	e := FromReport(r)
	fields := map[string]any{
		"skill":      r.SkillID,
		"model":      r.Model,
		"executions": e.Executions,
		"tokens":     e.Tokens,
		"cost_usd":   roundToFourDecimalPlaces(e.CostUSD),
	}
	if elapsed := time.Since(started); elapsed > 0 && e.Tokens > 0 {
		fields["tokens/s"] = roundToFourDecimalPlaces(float64(e.Tokens) / elapsed.Seconds())
	}

	logger.G(ctx).WithFields(fields).Info("benchmark usage")
}
