// Package present turns raw bridge output into something a user can read:
// a table with CSV export when the text decodes as JSON rows, otherwise the
// text itself.
package present

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// EmptyMessage is shown when a query succeeded without returning content.
const EmptyMessage = "✅ Query executed, but no results."

// Kind classifies a presented result.
type Kind int

const (
	// KindText is raw text shown verbatim.
	KindText Kind = iota
	// KindTable is a decoded row set.
	KindTable
	// KindEmpty is a successful query with nothing to show.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindEmpty:
		return "empty"
	default:
		return "text"
	}
}

// Result is the presenter output for one query.
type Result struct {
	Kind  Kind
	Raw   string
	Table Table
	// ParseErr records why Raw was not shown as a table. Never fatal.
	ParseErr error
}

// Present tries to decode raw as JSON rows and falls back to raw text.
// It never fails.
func Present(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Empty()
	}
	t, err := DecodeRows(trimmed)
	if err != nil {
		return Result{Kind: KindText, Raw: raw, ParseErr: err}
	}
	if t.Len() == 0 {
		return Result{Kind: KindEmpty, Raw: raw}
	}
	return Result{Kind: KindTable, Raw: raw, Table: t}
}

// Empty returns the result for a query that produced no content.
func Empty() Result {
	return Result{Kind: KindEmpty}
}

// Message returns the banner line for the result.
func (r Result) Message() string {
	switch r.Kind {
	case KindEmpty:
		return EmptyMessage
	case KindTable:
		return fmt.Sprintf("✅ Query executed (%d rows)", r.Table.Len())
	default:
		return "✅ Query executed"
	}
}

// CSV encodes the table with a header row. NULL cells are written empty.
func (r Result) CSV() ([]byte, error) {
	if r.Kind != KindTable {
		return nil, fmt.Errorf("result is %s, not a table", r.Kind)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(r.Table.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(r.Table.Columns))
	for _, row := range r.Table.Rows {
		for i, v := range row {
			if v == nil {
				record[i] = ""
				continue
			}
			record[i] = FormatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// HTML renders the table as an escaped HTML <table>.
func (r Result) HTML() string {
	t := r.writer()
	t.Style().HTML.CSSClass = "result-table"
	return t.RenderHTML()
}

// Markdown renders the table as a markdown table.
func (r Result) Markdown() string {
	return r.writer().RenderMarkdown()
}

// WriteText writes a boxed text table followed by a row count,
// or the raw text for non-table results.
func (r Result) WriteText(w io.Writer) error {
	switch r.Kind {
	case KindEmpty:
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	case KindText:
		_, err := fmt.Fprintln(w, r.Raw)
		return err
	}
	t := r.writer()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", r.Table.Len())
	return err
}

// JSON re-encodes the rows as an indented array of objects. Keys follow the
// column order.
func (r Result) JSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if r.Kind != KindTable {
		return enc.Encode([]orderedRow{})
	}
	out := make([]orderedRow, 0, r.Table.Len())
	for _, row := range r.Table.Rows {
		out = append(out, orderedRow{columns: r.Table.Columns, values: row})
	}
	return enc.Encode(out)
}

// orderedRow marshals as a JSON object with keys in column order.
type orderedRow struct {
	columns []string
	values  []any
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, col := range o.columns {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		var cell any
		if i < len(o.values) {
			cell = o.values[i]
		}
		v, err := json.Marshal(cell)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (r Result) writer() table.Writer {
	t := table.NewWriter()
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(r.Table.Columns))
	for i, col := range r.Table.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range r.Table.Rows {
		cells := make(table.Row, len(row))
		for i, v := range row {
			cells[i] = FormatCell(v)
		}
		t.AppendRow(cells)
	}
	return t
}
