// Package render prints stop reports and summaries for terminals: aligned
// markdown tables, YAML or JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"checkpost/pkg/sanitizer"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatJSON  = "json"

	minColumnWidth = 3
	nullCell       = "-"
)

// ParseFormat accepts table, yaml or json; empty means table.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, yaml or json)", s)
	}
}

// Columns picks the columns to print: the requested ones when given,
// otherwise the declared ones, otherwise every key found in rows, sorted.
func Columns(requested, declared []string, rows []map[string]any) []string {
	if cols := sanitizer.NormalizeColumns(requested); len(cols) > 0 {
		return cols
	}
	if len(declared) > 0 {
		return declared
	}

	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// Rows writes rows in the given format. Tables show only columns; YAML and
// JSON keep each row whole.
func Rows(w io.Writer, format string, columns []string, rows []map[string]any) error {
	switch format {
	case FormatYAML:
		return YAML(w, rows)
	case FormatJSON:
		return JSON(w, rows)
	default:
		return Table(w, columns, rows)
	}
}

// Value writes any value as YAML or JSON. Tables fall back to YAML.
func Value(w io.Writer, format string, v any) error {
	if format == FormatJSON {
		return JSON(w, v)
	}
	return YAML(w, v)
}

func YAML(w io.Writer, v any) error {
	// round trip through JSON so json tags and time formats apply
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes a markdown table padded by display width, so wide runes in
// place names line up.
func Table(w io.Writer, columns []string, rows []map[string]any) error {
	if len(columns) == 0 {
		_, err := io.WriteString(w, "(no columns)\n")
		return err
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = max(minColumnWidth, runewidth.StringWidth(col))
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i, col := range columns {
			s := Cell(row[col])
			cells[r][i] = s
			widths[i] = max(widths[i], runewidth.StringWidth(s))
		}
	}

	var sb strings.Builder
	writeLine(&sb, columns, widths)
	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = strings.Repeat("-", widths[i])
	}
	writeLine(&sb, sep, widths)
	for _, row := range cells {
		writeLine(&sb, row, widths)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeLine(sb *strings.Builder, values []string, widths []int) {
	sb.WriteString("|")
	for i, v := range values {
		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(v, widths[i]))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

// Cell formats one value for a table. Pipes and newlines would break the
// row and are escaped.
func Cell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return nullCell
	case string:
		s = t
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		s = t.UTC().Format(time.RFC3339)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
