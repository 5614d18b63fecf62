package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New()
	assert.NotNil(t, p)
	assert.Equal(t, os.Stdout, p.output)
	assert.Equal(t, os.Stderr, p.errorOutput)
	assert.False(t, p.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name            string
		noColor         string
		skillbenchColor string
		expected        ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"NO_COLOR wins over always", "1", "always", ColorNever},
		{"SKILLBENCH_COLOR always", "", "always", ColorAlways},
		{"SKILLBENCH_COLOR force", "", "force", ColorAlways},
		{"SKILLBENCH_COLOR never", "", "never", ColorNever},
		{"SKILLBENCH_COLOR off", "", "off", ColorNever},
		{"SKILLBENCH_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"invalid value", "", "rainbow", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("SKILLBENCH_COLOR", tt.skillbenchColor)
			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestError(t *testing.T) {
	var errorOutput bytes.Buffer
	p := NewWithOptions(nil, &errorOutput, ColorNever)

	err := errors.New("test error")
	p.Error(err, "test context")
	assert.Equal(t, "[ERROR] test context: test error\n", errorOutput.String())

	errorOutput.Reset()
	p.Error(err, "")
	assert.Equal(t, "[ERROR] test error\n", errorOutput.String())

	errorOutput.Reset()
	p.Error(nil, "context")
	assert.Empty(t, errorOutput.String())

	p.SetQuiet(true)
	p.Error(err, "")
	assert.NotEmpty(t, errorOutput.String(), "errors are shown in quiet mode")
}

func TestMessages(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Success("done")
	p.Warning("careful")
	p.Info("plain")
	assert.Equal(t, "✓ done\n⚠ careful\nplain\n", output.String())
}

func TestSection(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Section("Test Section")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Test Section", lines[0])
	assert.Equal(t, strings.Repeat("-", len("Test Section")), lines[1])
}

func TestProgress(t *testing.T) {
	var output, errorOutput bytes.Buffer
	p := NewWithOptions(&output, &errorOutput, ColorNever)

	p.Progress(Progress{Test: "auth", Type: "knowledge", Accuracy: 75, Passed: true, WithSkill: true})
	p.Progress(Progress{Test: "auth", Type: "knowledge", Accuracy: 25})

	assert.Empty(t, output.String())
	assert.Equal(t, "✓ auth [knowledge, skill] 75.0%\n✗ auth [knowledge, baseline] 25.0%\n", errorOutput.String())
}

func TestStats(t *testing.T) {
	var output bytes.Buffer
	p := NewWithOptions(&output, nil, ColorNever)

	p.Stats(&RunStats{Tests: 2, Executions: 6, Failures: 1, BaselineRuns: 3, TokensTotal: 1200, CostUSD: 0.0125, DurationMs: 1500, PassRate: 50})

	result := output.String()
	assert.Contains(t, result, "[Run Stats] Tests: 2 | Executions: 6 | Failed: 1 | Baseline: 3 | Pass rate: 50.0%")
	assert.Contains(t, result, "[Cost Stats] Tokens: 1200 | Cost: $0.0125 | Duration: 1.5s")

	output.Reset()
	p.Stats(nil)
	assert.Empty(t, output.String())
}

func TestQuietMode(t *testing.T) {
	var output, errorOutput bytes.Buffer
	p := NewWithOptions(&output, &errorOutput, ColorNever)
	p.SetQuiet(true)
	assert.True(t, p.IsQuiet())

	p.Success("x")
	p.Warning("x")
	p.Info("x")
	p.Section("x")
	p.Separator()
	p.Stats(&RunStats{})
	p.Progress(Progress{Test: "x"})

	assert.Empty(t, output.String())
	assert.Empty(t, errorOutput.String())

	p.SetQuiet(false)
	assert.False(t, p.IsQuiet())
}

func TestColorModeConfiguration(t *testing.T) {
	oldNoColor := color.NoColor
	t.Cleanup(func() { color.NoColor = oldNoColor })

	NewWithOptions(&bytes.Buffer{}, &bytes.Buffer{}, ColorNever)
	assert.True(t, color.NoColor)

	NewWithOptions(&bytes.Buffer{}, &bytes.Buffer{}, ColorAlways)
	assert.False(t, color.NoColor)
}

func TestGlobalFunctions(t *testing.T) {
	var output, errorOutput bytes.Buffer
	prev := SetDefault(NewWithOptions(&output, &errorOutput, ColorNever))
	t.Cleanup(func() { SetDefault(prev) })

	Error(errors.New("boom"), "run")
	assert.Contains(t, errorOutput.String(), "[ERROR] run: boom")

	Success("saved")
	assert.Contains(t, output.String(), "✓ saved")

	ReportProgress(Progress{Test: "t", Type: "task", Passed: true, WithSkill: true})
	assert.Contains(t, errorOutput.String(), "✓ t [task, skill]")

	Separator()
	assert.Contains(t, output.String(), strings.Repeat("-", 60))

	SetQuiet(true)
	assert.True(t, IsQuiet())
	output.Reset()
	Info("hidden")
	Stats(&RunStats{})
	Section("hidden")
	Warning("hidden")
	assert.Empty(t, output.String())
	SetQuiet(false)
}
