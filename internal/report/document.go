package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-intel/internal/model"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "xlsx":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("report: unsupported format %q", s)
	}
}

// FormatFor picks the format implied by path's extension, or fallback when
// the extension is not recognized.
func FormatFor(path string, fallback Format) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil && filepath.Ext(path) != "" {
		return f
	}
	return fallback
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, r *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

// WriteYAML encodes the report as YAML.
func WriteYAML(w io.Writer, r *model.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return nil
}

// Encode writes the report to w in the given format.
func Encode(w io.Writer, r *model.Report, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatXLSX:
		return EncodeXLSX(w, r)
	default:
		return eris.Errorf("report: unsupported format %q", format)
	}
}

// WriteFile writes the report to path in the given format.
func WriteFile(path string, r *model.Report, format Format) error {
	if format == FormatXLSX {
		return WriteXLSX(path, r)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := Encode(f, r, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", path)
	}
	return nil
}
