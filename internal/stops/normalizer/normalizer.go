// Package normalizer turns loosely structured traffic-stop batches into
// typed, analysis ready batches.
//
// Normalize never fails on individual values. Unparseable dates, times and
// ages become absent, unrecognised boolean tokens become Unknown, and missing
// categorical values become "Unknown". Only structural problems with the
// batch itself are reported, as *InvalidInputError.
//
// The package holds no mutable state and performs no I/O, so Normalize may be
// called concurrently on independent batches.
package normalizer

import (
	"strings"

	"checkpost/pkg/table"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ColStopDate         = "stop_date"
	ColStopTime         = "stop_time"
	ColDriverAge        = "driver_age"
	ColDriverAgeRaw     = "driver_age_raw"
	ColSearchConducted  = "search_conducted"
	ColIsArrested       = "is_arrested"
	ColDrugsRelatedStop = "drugs_related_stop"
	ColViolation        = "violation"
	ColViolationRaw     = "violation_raw"
	ColCountryName      = "country_name"
	ColDriverGender     = "driver_gender"
	ColDriverRace       = "driver_race"
	ColStopOutcome      = "stop_outcome"
	ColStopDuration     = "stop_duration"
	ColNeedsReview      = "needs_review"

	UnknownCategory = "Unknown"
)

var (
	BooleanColumns     = []string{ColSearchConducted, ColIsArrested, ColDrugsRelatedStop}
	CategoricalColumns = []string{ColCountryName, ColDriverGender, ColDriverRace, ColStopOutcome, ColStopDuration}
)

// Result is a cleaned batch together with what the pass removed or renamed.
type Result struct {
	Batch *table.Batch
	// Dropped lists the original names of columns that were absent in every row.
	Dropped []string
	// Renamed maps original column names to their normalized form, for names that changed.
	Renamed map[string]string
}

// stage is one step of the cleaning pass. Stages run in a fixed order and each
// sees the output of the previous one.
type stage func(p *pass) error

type pipeline []stage

func (pl pipeline) apply(p *pass) error {
	for _, step := range pl {
		if err := step(p); err != nil {
			return err
		}
	}
	return nil
}

type pass struct {
	batch  *table.Batch
	result *Result
	// declared holds the normalized names of every input column, including
	// the ones pruning removes.
	declared map[string]struct{}
	title    cases.Caser
}

var stages = pipeline{
	pruneEmptyColumns,
	normalizeNames,
	parseDates,
	parseTimes,
	deriveAge,
	coerceBooleans,
	classifyViolations,
	fillCategoricals,
	flagForReview,
}

// Normalize cleans batch and returns a new batch. The input is not modified.
func Normalize(batch *table.Batch) (*table.Batch, error) {
	res, err := Run(batch)
	if err != nil {
		return nil, err
	}
	return res.Batch, nil
}

// Run is Normalize with a report of pruned and renamed columns.
func Run(batch *table.Batch) (*Result, error) {
	if err := checkStructure(batch); err != nil {
		return nil, err
	}

	p := &pass{
		batch:    batch.Clone(),
		result:   &Result{Renamed: map[string]string{}},
		declared: make(map[string]struct{}, len(batch.Columns)),
		// a Caser is stateful, one per pass
		title: cases.Title(language.Und),
	}
	for _, c := range batch.Columns {
		p.declared[normalizeName(c)] = struct{}{}
	}

	if err := stages.apply(p); err != nil {
		return nil, err
	}
	p.result.Batch = p.batch
	return p.result, nil
}

func checkStructure(batch *table.Batch) error {
	if batch == nil {
		return invalid("batch is nil")
	}

	seen := make(map[string]struct{}, len(batch.Columns))
	for _, c := range batch.Columns {
		if strings.TrimSpace(c) == "" {
			return invalid("blank column name", c)
		}
		if _, dup := seen[c]; dup {
			return invalid("duplicate column", c)
		}
		seen[c] = struct{}{}
	}

	for _, row := range batch.Rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				return invalid("row carries undeclared column", k)
			}
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func pruneEmptyColumns(p *pass) error {
	kept := p.batch.Columns[:0:0]
	for _, c := range p.batch.Columns {
		if columnHasValue(p.batch, c) {
			kept = append(kept, c)
			continue
		}
		p.result.Dropped = append(p.result.Dropped, c)
		for _, row := range p.batch.Rows {
			delete(row, c)
		}
	}
	p.batch.Columns = kept
	return nil
}

func columnHasValue(b *table.Batch, column string) bool {
	for _, row := range b.Rows {
		if !row[column].IsNull() {
			return true
		}
	}
	return false
}

func normalizeNames(p *pass) error {
	origin := make(map[string]string, len(p.batch.Columns))
	renamed := make([]string, len(p.batch.Columns))

	for i, c := range p.batch.Columns {
		name := normalizeName(c)
		if prev, clash := origin[name]; clash {
			return invalid("columns collide after name normalization", prev, c)
		}
		origin[name] = c
		renamed[i] = name
		if name != c {
			p.result.Renamed[c] = name
		}
	}

	if len(p.result.Renamed) > 0 {
		for i, row := range p.batch.Rows {
			out := make(table.Row, len(row))
			for k, v := range row {
				out[normalizeName(k)] = v
			}
			p.batch.Rows[i] = out
		}
	}
	p.batch.Columns = renamed
	return nil
}

func parseDates(p *pass) error {
	mapColumn(p.batch, ColStopDate, parseDate)
	return nil
}

func parseTimes(p *pass) error {
	mapColumn(p.batch, ColStopTime, parseClock)
	return nil
}

func deriveAge(p *pass) error {
	switch {
	case p.batch.HasColumn(ColDriverAge):
		mapColumn(p.batch, ColDriverAge, parseAge)
	case p.batch.HasColumn(ColDriverAgeRaw):
		p.batch.AddColumn(ColDriverAge)
		for _, row := range p.batch.Rows {
			setCell(row, ColDriverAge, parseAge(row[ColDriverAgeRaw]))
		}
	}
	return nil
}

func coerceBooleans(p *pass) error {
	for _, c := range BooleanColumns {
		mapColumn(p.batch, c, func(v table.Value) table.Value {
			return table.Tri(coerceBool(v))
		})
	}
	return nil
}

func classifyViolations(p *pass) error {
	if !p.batch.HasColumn(ColViolationRaw) || p.batch.HasColumn(ColViolation) {
		return nil
	}
	p.batch.AddColumn(ColViolation)
	for _, row := range p.batch.Rows {
		setCell(row, ColViolation, classifyViolation(row[ColViolationRaw], p.title))
	}
	return nil
}

func fillCategoricals(p *pass) error {
	for _, c := range CategoricalColumns {
		mapColumn(p.batch, c, func(v table.Value) table.Value {
			if v.IsNull() {
				return table.String(UnknownCategory)
			}
			return v
		})
	}
	return nil
}

func flagForReview(p *pass) error {
	_, hasDate := p.declared[ColStopDate]
	_, hasTime := p.declared[ColStopTime]
	if !hasDate || !hasTime {
		return nil
	}

	p.batch.AddColumn(ColNeedsReview)
	for _, row := range p.batch.Rows {
		row[ColNeedsReview] = table.Bool(row[ColStopDate].IsNull() && row[ColStopTime].IsNull())
	}
	return nil
}

// mapColumn rewrites every cell of column when the column exists.
func mapColumn(b *table.Batch, column string, fn func(table.Value) table.Value) {
	if !b.HasColumn(column) {
		return
	}
	for _, row := range b.Rows {
		setCell(row, column, fn(row[column]))
	}
}

func setCell(row table.Row, column string, v table.Value) {
	if v.IsNull() {
		delete(row, column)
		return
	}
	row[column] = v
}
