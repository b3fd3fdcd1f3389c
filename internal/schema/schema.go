// Package schema builds a table -> columns map from INFORMATION_SCHEMA output.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/present"
)

// InformationSchemaQuery lists every column of every table, in declaration order.
const InformationSchemaQuery = "SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME " +
	"FROM INFORMATION_SCHEMA.COLUMNS " +
	"ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION;"

// Map is an ordered mapping of "schema.table" to its ordered column list.
// When the bridge output could not be read as rows, Raw holds it instead.
type Map struct {
	tables  []string
	columns map[string][]string
	Raw     string
}

// New returns an empty map.
func New() *Map {
	return &Map{columns: map[string][]string{}}
}

// Add appends a column to the given table, creating the table on first use.
// Duplicate columns are ignored.
func (m *Map) Add(table, column string) {
	cols, ok := m.columns[table]
	if !ok {
		m.tables = append(m.tables, table)
	}
	for _, c := range cols {
		if c == column {
			return
		}
	}
	m.columns[table] = append(cols, column)
}

// Tables returns table keys in first-seen order.
func (m *Map) Tables() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.tables...)
}

// Columns returns the columns of table, or nil.
func (m *Map) Columns(table string) []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.columns[table]...)
}

// Len returns the number of tables.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.tables)
}

// IsRaw reports whether the map only carries unparsed bridge output.
func (m *Map) IsRaw() bool {
	return m != nil && len(m.tables) == 0 && m.Raw != ""
}

// Empty reports whether the map carries nothing at all.
func (m *Map) Empty() bool {
	return m == nil || (len(m.tables) == 0 && m.Raw == "")
}

// Parse builds a Map from the bridge's answer to InformationSchemaQuery.
//
// Object rows are matched on TABLE_SCHEMA, TABLE_NAME and COLUMN_NAME
// case-insensitively. Positional rows use their first three values.
// Output that is not rows is kept verbatim in Raw.
func Parse(raw string) *Map {
	m := New()
	t, err := present.DecodeRows(strings.TrimSpace(raw))
	if err != nil {
		m.Raw = raw
		return m
	}
	if t.Len() == 0 {
		return m
	}

	si, ti, ci := columnIndexes(t.Columns)
	if si < 0 || ti < 0 || ci < 0 {
		m.Raw = raw
		return m
	}

	for _, row := range t.Rows {
		schemaName := cell(row, si)
		table := cell(row, ti)
		column := cell(row, ci)
		if table == "" || column == "" {
			continue
		}
		key := table
		if schemaName != "" {
			key = schemaName + "." + table
		}
		m.Add(key, column)
	}
	if len(m.tables) == 0 && t.Len() > 0 {
		m.Raw = raw
	}
	return m
}

func columnIndexes(cols []string) (schemaIdx, tableIdx, columnIdx int) {
	schemaIdx, tableIdx, columnIdx = -1, -1, -1
	for i, c := range cols {
		switch strings.ToUpper(c) {
		case "TABLE_SCHEMA":
			schemaIdx = i
		case "TABLE_NAME":
			tableIdx = i
		case "COLUMN_NAME":
			columnIdx = i
		}
	}
	if tableIdx >= 0 && columnIdx >= 0 {
		return schemaIdx, tableIdx, columnIdx
	}
	// positional rows
	if len(cols) >= 3 && cols[0] == "0" {
		return 0, 1, 2
	}
	return -1, -1, -1
}

func cell(row []any, i int) string {
	if i < 0 || i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(present.FormatCell(row[i]))
}

// Prompt renders the map as compact context for SQL generation:
// one "schema.table(col1, col2)" line per table.
func (m *Map) Prompt() string {
	if m.Empty() {
		return ""
	}
	if m.IsRaw() {
		return m.Raw
	}
	var b strings.Builder
	for _, t := range m.tables {
		fmt.Fprintf(&b, "%s(%s)\n", t, strings.Join(m.columns[t], ", "))
	}
	return b.String()
}

// Sorted returns table keys in lexical order.
func (m *Map) Sorted() []string {
	out := m.Tables()
	sort.Strings(out)
	return out
}
