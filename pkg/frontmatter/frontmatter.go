// Package frontmatter splits markdown documents into their YAML frontmatter
// and body. It is shared by skill loading and test definition parsing.
package frontmatter

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Document is a parsed markdown file
type Document struct {
	// Meta holds the decoded frontmatter, nil when the file has none
	Meta map[string]any
	// Body is the markdown after the closing frontmatter delimiter
	Body string
}

var markdown = goldmark.New(goldmark.WithExtensions(meta.Meta))

// Parse decodes the frontmatter of content and extracts the body
func Parse(content []byte) (*Document, error) {
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := markdown.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	data, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}
	if len(data) == 0 {
		data = nil
	}

	return &Document{
		Meta: data,
		Body: extractBody(string(content)),
	}, nil
}

// ReadFile reads and parses the markdown file at path
func ReadFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return doc, nil
}

// String returns a string frontmatter value, or an empty string when the key
// is missing or holds another type
func (d *Document) String(key string) string {
	s, _ := d.Meta[key].(string)
	return strings.TrimSpace(s)
}

func extractBody(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
}
