package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrNoHeader        = errors.New("table: missing header row")
	ErrDuplicateColumn = errors.New("table: duplicate column")
	ErrMalformedRow    = errors.New("table: malformed row")
	ErrMalformedJSON   = errors.New("table: malformed records")
)

// DefaultNAValues are the cell tokens read as absent.
var DefaultNAValues = []string{
	"", "NA", "N/A", "n/a", "NULL", "null", "NaN", "nan", "None", "<NA>", "#N/A",
}

type CSVOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// NAValues overrides DefaultNAValues when non-nil.
	NAValues []string
	// MaxRows stops reading after this many data rows. Zero means no limit.
	MaxRows int
}

// ReadCSV reads a header row followed by data rows. Every cell stays a string
// unless it is an NA token, in which case it is absent. Blank header cells are
// named "unnamed_<index>".
func ReadCSV(r io.Reader, opts CSVOptions) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	na := opts.NAValues
	if na == nil {
		na = DefaultNAValues
	}
	naSet := make(map[string]struct{}, len(na))
	for _, tok := range na {
		naSet[tok] = struct{}{}
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRow, err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if strings.TrimSpace(name) == "" {
			name = "unnamed_" + strconv.Itoa(i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}

	batch := &Batch{Columns: columns}
	for line := 2; opts.MaxRows == 0 || batch.Len() < opts.MaxRows; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}

		row := make(Row, len(columns))
		for i, cell := range record {
			if _, isNA := naSet[cell]; isNA {
				continue
			}
			row[columns[i]] = String(cell)
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}
