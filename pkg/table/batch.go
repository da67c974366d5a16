// Package table holds the loosely typed tabular batches that flow from the
// ingestion codecs into the normalizer and on to storage.
//
// A Batch is row oriented. Each row maps column name to Value, and a column
// missing from a row's map reads as the absent marker. Batch.Columns keeps
// the discovery order of the columns so output stays stable.
package table

import "sort"

type Row map[string]Value

type Batch struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func NewBatch(columns ...string) *Batch {
	b := &Batch{Columns: make([]string, 0, len(columns))}
	for _, c := range columns {
		b.AddColumn(c)
	}
	return b
}

func (b *Batch) Len() int { return len(b.Rows) }

func (b *Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn declares a column. It is a no-op when the column already exists.
func (b *Batch) AddColumn(name string) {
	if !b.HasColumn(name) {
		b.Columns = append(b.Columns, name)
	}
}

// Append adds a row, declaring any columns it introduces in name order.
func (b *Batch) Append(row Row) {
	var added []string
	for name := range row {
		if !b.HasColumn(name) {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	b.Columns = append(b.Columns, added...)
	b.Rows = append(b.Rows, row)
}

// Get returns the value at row i, or the absent marker.
func (b *Batch) Get(i int, column string) Value {
	if i < 0 || i >= len(b.Rows) {
		return Null()
	}
	return b.Rows[i][column]
}

func (b *Batch) Column(name string) []Value {
	out := make([]Value, len(b.Rows))
	for i, row := range b.Rows {
		out[i] = row[name]
	}
	return out
}

// Clone copies the column list and every row map. Values are immutable and shared.
func (b *Batch) Clone() *Batch {
	out := &Batch{
		Columns: append([]string(nil), b.Columns...),
		Rows:    make([]Row, len(b.Rows)),
	}
	for i, row := range b.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Head returns a batch sharing the first n rows.
func (b *Batch) Head(n int) *Batch {
	if n < 0 || n > len(b.Rows) {
		n = len(b.Rows)
	}
	return &Batch{Columns: b.Columns, Rows: b.Rows[:n]}
}

// Records converts rows to plain maps keyed by column, omitting nothing:
// absent cells become nil so every record carries the full schema.
func (b *Batch) Records() []map[string]any {
	out := make([]map[string]any, len(b.Rows))
	for i, row := range b.Rows {
		rec := make(map[string]any, len(b.Columns))
		for _, c := range b.Columns {
			rec[c] = row[c].Interface()
		}
		out[i] = rec
	}
	return out
}
