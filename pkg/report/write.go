package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Format selects how a report is rendered
type Format string

const (
	FormatConsole  Format = "console"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists every supported format
var Formats = []Format{FormatConsole, FormatMarkdown, FormatJSON, FormatYAML}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatConsole, FormatMarkdown, FormatJSON, FormatYAML:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", errors.Errorf("unknown report format %q", s)
}

// FormatForPath infers a file format from its extension, falling back to
// markdown
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatMarkdown
	}
}

// Render writes the report to w in the given format
func Render(w io.Writer, f Format, r *bench.Report) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatConsole:
		return Console(w, r)
	case FormatMarkdown:
		data = []byte(Markdown(r))
	case FormatJSON:
		data, err = EncodeJSON(r)
	case FormatYAML:
		data, err = EncodeYAML(r)
	default:
		return errors.Errorf("unknown report format %q", f)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return nil
}

// EncodeJSON returns the indented JSON encoding of the report
func EncodeJSON(r *bench.Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal report")
	}
	return append(data, '\n'), nil
}

// EncodeYAML returns the report as YAML with the same keys as its JSON form
func EncodeYAML(r *bench.Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal report")
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, errors.Wrap(err, "failed to convert report")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return nil, errors.Wrap(err, "failed to marshal report as yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to marshal report as yaml")
	}
	return buf.Bytes(), nil
}

// WriteJSON writes the report to path as JSON while holding a file lock
func WriteJSON(path string, r *bench.Report) error {
	data, err := EncodeJSON(r)
	if err != nil {
		return err
	}
	return writeLocked(path, data)
}

// WriteYAML writes the report to path as YAML while holding a file lock
func WriteYAML(path string, r *bench.Report) error {
	data, err := EncodeYAML(r)
	if err != nil {
		return err
	}
	return writeLocked(path, data)
}

// WriteFile writes the report to path in the format implied by its
// extension
func WriteFile(path string, r *bench.Report) error {
	switch FormatForPath(path) {
	case FormatJSON:
		return WriteJSON(path, r)
	case FormatYAML:
		return WriteYAML(path, r)
	default:
		return writeLocked(path, []byte(Markdown(r)))
	}
}

// ReadJSON loads a report written by WriteJSON
func ReadJSON(path string) (*bench.Report, error) {
	data, err := lockedfile.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read report %s", path)
	}
	var r bench.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "failed to decode report %s", path)
	}
	return &r, nil
}

func writeLocked(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create report directory")
		}
	}
	if err := lockedfile.Write(path, bytes.NewReader(data), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write report %s", path)
	}
	return nil
}
