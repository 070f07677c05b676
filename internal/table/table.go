package table

import (
	"fmt"
	"strconv"
	"strings"
)

// commaReplacement substitutes commas inside field values so CSV lines
// never need quoting. Every output row is guaranteed to have exactly
// len(headers) comma-delimited fields.
const commaReplacement = "_"

// Table is a rectangular, header-driven tabular buffer.
//
// The header is fixed at construction (or grown only through
// BuildResults' schema-union pass). Every stored row has exactly one
// value per header column, in header order; unset values are nil and
// materialize as empty CSV fields.
type Table struct {
	headers []string
	index   map[string]int
	rows    [][]any
}

// NewTable creates an empty table with the given header.
func NewTable(headers ...string) *Table {
	t := &Table{
		headers: make([]string, len(headers)),
		index:   make(map[string]int, len(headers)),
	}
	copy(t.headers, headers)
	for i, h := range headers {
		t.index[h] = i
	}
	return t
}

// Headers returns the column names in declared order.
// The returned slice is a copy.
func (t *Table) Headers() []string {
	out := make([]string, len(t.headers))
	copy(out, t.headers)
	return out
}

// RowCount returns the number of data rows (excluding the header).
func (t *Table) RowCount() int {
	return len(t.rows)
}

// AddCompleteRow appends a row given as a value-per-column slice.
// The slice width must match the header exactly; a mismatch is a
// SchemaViolationError. The slice is copied.
func (t *Table) AddCompleteRow(values []any) error {
	if len(values) != len(t.headers) {
		return newWidthMismatchError(len(t.headers), len(values))
	}
	row := make([]any, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// AddRowFromMap appends a row given as a column→value map.
// Columns absent from the map become empty fields; columns absent from
// the header are a SchemaViolationError (the schema-union pass must run
// before materialization, see BuildResults).
func (t *Table) AddRowFromMap(values map[string]any) error {
	row := make([]any, len(t.headers))
	for col, v := range values {
		i, ok := t.index[col]
		if !ok {
			return newUndeclaredColumnError(col)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// AddRow appends one Row. Set columns map into the header; declared but
// unset columns become empty fields. A set column missing from the
// header is a SchemaViolationError.
func (t *Table) AddRow(r *Row) error {
	row := make([]any, len(t.headers))
	for _, col := range r.columns {
		v, ok := r.Get(col)
		if !ok {
			continue
		}
		i, ok := t.index[col]
		if !ok {
			return newUndeclaredColumnError(col)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Cell returns the value at (row, column name), or nil if unset.
func (t *Table) Cell(row int, column string) any {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil
	}
	return t.rows[row][i]
}

// Clone returns a deep copy of the table's header and row structure.
// Cell values are copied by reference; they are treated as immutable
// once handed to a table.
func (t *Table) Clone() *Table {
	c := NewTable(t.headers...)
	c.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		r := make([]any, len(row))
		copy(r, row)
		c.rows[i] = r
	}
	return c
}

// CSVLines materializes the table as CSV: the header line followed by
// one line per row. Fields are comma-delimited; commas inside values
// are replaced, never quoted, so every line has the same field count.
func (t *Table) CSVLines() []string {
	lines := make([]string, 0, len(t.rows)+1)
	lines = append(lines, strings.Join(t.headers, ","))
	fields := make([]string, len(t.headers))
	for _, row := range t.rows {
		for i, v := range row {
			fields[i] = FormatValue(v)
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return lines
}

// CSV materializes the table as a single newline-terminated string.
func (t *Table) CSV() string {
	return strings.Join(t.CSVLines(), "\n") + "\n"
}

// FormatValue serializes a cell value to its CSV field text.
// nil becomes the empty string; commas are replaced with a safe
// character so field delimiting is never broken.
func FormatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	default:
		s = fmt.Sprint(x)
	}
	return strings.ReplaceAll(s, ",", commaReplacement)
}

// BuildResults reconciles heterogeneous rows into one rectangular table.
//
// Two passes, because ad-hoc columns are not known until every row has
// executed. First the header union is computed by scanning every row's
// columns in order (first appearance wins, so the result is
// deterministic given the same row order). Then each row is
// materialized against the union header, with unset columns as empty
// fields.
//
// nil entries in rows are skipped entirely: they contribute no columns
// and no output row.
func BuildResults(rows []*Row) *Table {
	var headers []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if r == nil {
			continue
		}
		for _, col := range r.columns {
			if !seen[col] {
				seen[col] = true
				headers = append(headers, col)
			}
		}
	}

	t := NewTable(headers...)
	for _, r := range rows {
		if r == nil {
			continue
		}
		// Union header covers every row's columns, so AddRow cannot
		// fail here.
		if err := t.AddRow(r); err != nil {
			panic(fmt.Sprintf("table: union header missing column: %v", err))
		}
	}
	return t
}
