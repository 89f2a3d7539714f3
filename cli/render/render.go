// Package render writes the results of the es2json read-only commands.
//
// The format defaults to table on a terminal and json elsewhere; --format
// always wins. --no-color only strips the outcome coloring of table output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/es2json/cli/reader"
	"github.com/justapithecus/es2json/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// maxMissingRows caps the missing ids listed in table output.
const maxMissingRows = 20

// ParseFormat parses a format string. The empty string means "pick a default".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "", FormatJSON, FormatTable, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a renderer from the --format and --no-color flags.
// Output goes to the app writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		format = defaultFormat(out)
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

// NewRendererWithWriter creates a renderer on an explicit writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

func defaultFormat(out io.Writer) Format {
	f, ok := out.(*os.File)
	if !ok {
		return FormatJSON
	}
	info, err := f.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return FormatJSON
	}
	return FormatTable
}

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the interactive view for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

// row is one "label: value" line of table output.
type row struct {
	label string
	value string
}

func (r *Renderer) renderTable(data any) error {
	var rows []row
	switch v := data.(type) {
	case *reader.ReportSummary:
		rows = r.reportRows(v)
	case reader.ReportSummary:
		rows = r.reportRows(&v)
	default:
		rows = structRows(data)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, rw := range rows {
		fmt.Fprintf(w, "%s:\t%s\n", rw.label, rw.value)
	}
	return w.Flush()
}

func (r *Renderer) reportRows(s *reader.ReportSummary) []row {
	outcome := s.Outcome
	if !r.noColor {
		outcome = tui.StateStyle(s.Outcome).Render(s.Outcome)
	}

	rows := []row{
		{"run_id", s.RunID},
		{"index", s.Index},
		{"day", s.Day},
		{"mode", s.Mode},
		{"outcome", outcome},
	}
	if s.Message != "" {
		rows = append(rows, row{"message", s.Message})
	}
	rows = append(rows,
		row{"exit_code", fmt.Sprint(s.ExitCode)},
		row{"duration_ms", fmt.Sprint(s.DurationMs)},
		row{"emitted", fmt.Sprint(s.Emitted)},
		row{"found", fmt.Sprint(s.Found)},
		row{"missing_count", fmt.Sprint(s.MissingCount)},
		row{"remaining", fmt.Sprint(s.Remaining)},
		row{"store_calls", s.StoreCallsString()},
		row{"completed_at", s.CompletedAt},
	)
	if len(s.Missing) > 0 {
		rows = append(rows, row{"missing", formatMissing(s.Missing, s.MissingCount)})
	}
	return rows
}

func formatMissing(ids []string, total int64) string {
	shown := ids[:min(len(ids), maxMissingRows)]
	out := strings.Join(shown, ", ")
	if rest := total - int64(len(shown)); rest > 0 {
		out += fmt.Sprintf(" (+%d more)", rest)
	}
	return out
}

// structRows lists the exported fields of a struct under their json names.
func structRows(data any) []row {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return []row{{"value", fmt.Sprint(data)}}
	}

	t := v.Type()
	rows := make([]row, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.ToLower(f.Name)
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		rows = append(rows, row{name, fmt.Sprint(v.Field(i).Interface())})
	}
	return rows
}
