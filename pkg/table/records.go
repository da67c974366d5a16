package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DecodeRecords reads a JSON array of flat objects. Columns are declared in
// first appearance order, null and missing keys are absent, integral numbers
// become Int and other numbers Float. Nested objects and arrays are rejected.
func DecodeRecords(r io.Reader) (*Batch, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	batch := &Batch{}
	declared := make(map[string]struct{})
	for index := 0; dec.More(); index++ {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("record %d: %w", index, err)
		}

		row := make(Row)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedJSON, index, err)
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("%w: record %d: expected key", ErrMalformedJSON, index)
			}
			if _, dup := row[key]; dup {
				return nil, fmt.Errorf("%w: record %d: %q", ErrDuplicateColumn, index, key)
			}

			value, err := decodeScalar(dec)
			if err != nil {
				return nil, fmt.Errorf("record %d, key %q: %w", index, key, err)
			}

			if _, ok := declared[key]; !ok {
				declared[key] = struct{}{}
				batch.Columns = append(batch.Columns, key)
			}
			row[key] = value
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("record %d: %w", index, err)
		}

		// Null cells only mark the key as seen; drop them from the row.
		for k, v := range row {
			if v.IsNull() {
				delete(row, k)
			}
		}
		batch.Rows = append(batch.Rows, row)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformedJSON)
	}
	return batch, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q", ErrMalformedJSON, want)
	}
	return nil
}

func decodeScalar(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("%w: number %s", ErrMalformedJSON, t)
		}
		return Float(f), nil
	case json.Delim:
		return Null(), fmt.Errorf("%w: nested values are not supported", ErrMalformedJSON)
	}
	return Null(), fmt.Errorf("%w: unexpected token %v", ErrMalformedJSON, tok)
}
