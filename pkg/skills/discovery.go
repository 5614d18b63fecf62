package skills

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Discovery finds installed skills by name in a list of skill directories
type Discovery struct {
	skillDirs []string
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithSkillDirs sets custom skill directories, in precedence order
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) error {
		d.skillDirs = dirs
		return nil
	}
}

// WithDefaultDirs searches the repo-local and user-global skill directories
func WithDefaultDirs() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		d.skillDirs = []string{
			"./.claude/skills",
			filepath.Join(homeDir, ".claude", "skills"),
		}
		return nil
	}
}

// NewDiscovery creates a new skill discovery instance
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{}

	if len(opts) == 0 {
		opts = []Option{WithDefaultDirs()}
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// DiscoverSkills loads every valid skill from the configured directories.
// When two directories hold a skill of the same name the earlier one wins.
func (d *Discovery) DiscoverSkills() map[string]*Skill {
	skills := make(map[string]*Skill)
	for _, dir := range d.skillDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			entryPath := filepath.Join(dir, entry.Name())
			info, err := os.Stat(entryPath)
			if err != nil || !info.IsDir() {
				continue
			}

			skill, err := Load(entryPath)
			if err != nil {
				continue
			}
			if _, exists := skills[skill.Name]; !exists {
				skills[skill.Name] = skill
			}
		}
	}
	return skills
}

// ListSkillNames returns the sorted names of all available skills
func (d *Discovery) ListSkillNames() []string {
	skills := d.DiscoverSkills()
	names := make([]string, 0, len(skills))
	for name := range skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the skill at ref when ref is an existing path, and
// otherwise looks it up by name in the configured directories
func (d *Discovery) Resolve(ref string) (*Skill, error) {
	if _, err := os.Stat(ref); err == nil {
		return Load(ref)
	}

	skill, ok := d.DiscoverSkills()[ref]
	if !ok {
		return nil, errors.Errorf("skill '%s' not found", ref)
	}
	return skill, nil
}
