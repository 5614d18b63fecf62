package executor

import (
	"context"
	"sync"
	"time"

	"github.com/jingkaihe/skillbench/pkg/scoring"
	"github.com/jingkaihe/skillbench/pkg/skills"
)

// Probe adapts the executor to trigger scoring. Each query runs with the
// skill at skillPath attached; the tool calls the model makes are taken as
// the activation signal.
type Probe struct {
	executor *Executor
	model    string
	timeout  time.Duration

	mu     sync.Mutex
	loaded map[string]*skills.Skill
}

var _ scoring.Probe = (*Probe)(nil)

// NewProbe returns a probe running queries through e
func NewProbe(e *Executor, model string, timeout time.Duration) *Probe {
	return &Probe{
		executor: e,
		model:    model,
		timeout:  timeout,
		loaded:   make(map[string]*skills.Skill),
	}
}

// Probe runs one trigger query and reports how many tools the model used
func (p *Probe) Probe(ctx context.Context, query, skillPath, workDir string) (scoring.ProbeResult, error) {
	skill, err := p.skill(skillPath)
	if err != nil {
		return scoring.ProbeResult{}, err
	}

	rec, err := p.executor.Execute(ctx, Request{
		Prompt:  query,
		Model:   p.model,
		Skill:   skill,
		WorkDir: workDir,
		Timeout: p.timeout,
	})
	if err != nil {
		return scoring.ProbeResult{}, err
	}
	return scoring.ProbeResult{ToolCount: rec.ToolCount}, nil
}

func (p *Probe) skill(path string) (*skills.Skill, error) {
	if path == "" {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.loaded[path]; ok {
		return s, nil
	}
	s, err := skills.Load(path)
	if err != nil {
		return nil, err
	}
	p.loaded[path] = s
	return s, nil
}
