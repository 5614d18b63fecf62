// Package skills loads the skill under benchmark. A skill is a directory
// containing a SKILL.md file whose YAML frontmatter names and describes it;
// the markdown body is the instruction text handed to the model.
package skills

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/frontmatter"
)

// FileName is the skill definition file inside a skill directory
const FileName = "SKILL.md"

// Skill is a loaded skill with its metadata
type Skill struct {
	Name        string // Unique name from frontmatter
	Description string // Brief description used for activation
	Directory   string // Absolute path to the skill directory
	Content     string // Body of SKILL.md without frontmatter
}

// Path returns the location of the skill's SKILL.md
func (s *Skill) Path() string {
	return filepath.Join(s.Directory, FileName)
}

// Load reads a skill from a skill directory or directly from its SKILL.md
func Load(path string) (*Skill, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat skill path")
	}

	dir, file := abs, filepath.Join(abs, FileName)
	if !info.IsDir() {
		dir, file = filepath.Dir(abs), abs
	}

	doc, err := frontmatter.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if doc.Meta == nil {
		return nil, errors.Errorf("%s: missing frontmatter", file)
	}

	name := doc.String("name")
	description := doc.String("description")
	if name == "" {
		return nil, errors.Errorf("%s: skill name is required in frontmatter", file)
	}
	if description == "" {
		return nil, errors.Errorf("%s: skill description is required in frontmatter", file)
	}

	return &Skill{
		Name:        name,
		Description: description,
		Directory:   dir,
		Content:     strings.TrimSpace(doc.Body),
	}, nil
}
