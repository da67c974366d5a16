package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]string{"": FormatTable, "TABLE": FormatTable, "yml": FormatYAML, " json ": FormatJSON}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestColumns(t *testing.T) {
	rows := []map[string]any{{"b": 1, "a": 2}, {"c": 3}}

	assert.Equal(t, []string{"violation", "stops"}, Columns([]string{" Violation ", "", "stops", "violation"}, nil, rows))
	assert.Equal(t, []string{"x"}, Columns(nil, []string{"x"}, rows))
	assert.Equal(t, []string{"a", "b", "c"}, Columns(nil, nil, rows))
}

func TestTable_AlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	rows := []map[string]any{
		{"country_name": "日本", "stops": float64(12)},
		{"country_name": "Canada", "stops": nil},
	}
	require.NoError(t, Table(&buf, []string{"country_name", "stops"}, rows))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	width := runewidth.StringWidth(lines[0])
	for _, line := range lines {
		assert.Equal(t, width, runewidth.StringWidth(line), line)
	}
	assert.Contains(t, lines[2], "| 日本 ")
	assert.Contains(t, lines[3], "| -     |")
}

func TestCell(t *testing.T) {
	assert.Equal(t, "-", Cell(nil))
	assert.Equal(t, "33.5", Cell(33.5))
	assert.Equal(t, "true", Cell(true))
	assert.Equal(t, `a\|b c`, Cell("a|b\nc"))
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	v := struct {
		Name  string `json:"name"`
		Stops int    `json:"stops"`
	}{"stops_by_hour", 3}

	require.NoError(t, Value(&buf, FormatYAML, v))
	assert.Equal(t, "name: stops_by_hour\nstops: 3\n", buf.String())
}

func TestRows_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Rows(&buf, FormatJSON, nil, []map[string]any{{"a": 1}}))
	assert.JSONEq(t, `[{"a":1}]`, buf.String())
}
