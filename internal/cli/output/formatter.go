package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Formatter formats data for output.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter creates a formatter for the given format.
func NewFormatter(format Format, wide bool) Formatter {
	switch format {
	case FormatJSON:
		return jsonFormatter{}
	case FormatYAML:
		return yamlFormatter{}
	default:
		return &TableFormatter{Wide: wide}
	}
}

// Printer writes command results in the selected format.
type Printer struct {
	w         io.Writer
	formatter Formatter
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, format Format, wide bool) *Printer {
	return &Printer{w: w, formatter: NewFormatter(format, wide)}
}

// HideHeaders drops the header row from table output.
func (p *Printer) HideHeaders() {
	if t, ok := p.formatter.(*TableFormatter); ok {
		t.NoHeaders = true
	}
}

// Print renders data.
func (p *Printer) Print(data any) error {
	return p.formatter.Format(p.w, data)
}

type jsonFormatter struct{}

func (jsonFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

type yamlFormatter struct{}

// Format goes through JSON first so YAML keys match the json tags of API types.
func (yamlFormatter) Format(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
