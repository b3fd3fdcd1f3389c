package present

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNotRows is returned when JSON is valid but is not an array of rows.
var ErrNotRows = errors.New("result is not an array of rows")

// Table is a decoded row set. Cells hold nil, string, bool, json.Number or
// nested JSON values (map[string]any, []any).
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// DecodeRows parses raw as a JSON array of row records.
//
// An array of objects yields columns in first-appearance order across all rows;
// keys missing from a row become nil cells. An array of arrays yields positional
// columns named "0", "1", ... Mixed row shapes and scalars are rejected.
func DecodeRows(raw string) (Table, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Table{}, fmt.Errorf("decode rows: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return Table{}, ErrNotRows
	}

	var (
		columns   []string
		index     = map[string]int{}
		objects   []map[string]any
		positions [][]any
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Table{}, fmt.Errorf("decode row %d: %w", len(objects)+len(positions), err)
		}
		d, ok := tok.(json.Delim)
		switch {
		case ok && d == '{' && positions == nil:
			row, err := decodeObject(dec, &columns, index)
			if err != nil {
				return Table{}, err
			}
			objects = append(objects, row)
		case ok && d == '[' && objects == nil:
			row, err := decodeArray(dec)
			if err != nil {
				return Table{}, err
			}
			positions = append(positions, row)
		default:
			return Table{}, fmt.Errorf("%w: row %d has unexpected shape", ErrNotRows, len(objects)+len(positions))
		}
	}

	if _, err := dec.Token(); err != nil {
		return Table{}, fmt.Errorf("decode rows: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("decode rows: trailing data after array")
	}

	if positions != nil {
		return positionalTable(positions), nil
	}

	t := Table{Columns: columns, Rows: make([][]any, 0, len(objects))}
	for _, obj := range objects {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = obj[col]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func decodeObject(dec *json.Decoder, columns *[]string, index map[string]int) (map[string]any, error) {
	row := map[string]any{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode key: unexpected token %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		if _, seen := index[key]; !seen {
			index[key] = len(*columns)
			*columns = append(*columns, key)
		}
		row[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode object end: %w", err)
	}
	return row, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	var row []any
	for dec.More() {
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode array value: %w", err)
		}
		row = append(row, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode array end: %w", err)
	}
	return row, nil
}

func positionalTable(rows [][]any) Table {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	t := Table{Columns: make([]string, width), Rows: make([][]any, 0, len(rows))}
	for i := range t.Columns {
		t.Columns[i] = strconv.Itoa(i)
	}
	for _, r := range rows {
		row := make([]any, width)
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FormatCell renders a cell for display. nil renders as NULL.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
