// Package table implements the tabular data model for experiment
// results: per-trial result rows, rectangular data tables, CSV
// materialization, and the schema reconciliation that merges
// heterogeneous rows into one consistent output table.
package table

// Row is an ordered column→value mapping for one trial.
//
// A Row is created with a declared column set. In strict mode (the
// default) setting an undeclared column is a SchemaViolationError at
// the call site. In ad-hoc mode unknown columns are accepted and
// appended in first-use order; BuildResults later reconciles them into
// the final table schema.
//
// Column order is insertion order and is stable for the life of the row.
type Row struct {
	columns []string
	index   map[string]int
	values  []any
	set     []bool
	adHoc   bool
}

// NewRow creates a row with the given declared columns.
// Duplicate declarations are collapsed; first position wins.
func NewRow(columns []string, adHoc bool) *Row {
	r := &Row{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		values:  make([]any, 0, len(columns)),
		set:     make([]bool, 0, len(columns)),
		adHoc:   adHoc,
	}
	for _, c := range columns {
		r.declare(c)
	}
	return r
}

func (r *Row) declare(column string) int {
	if i, ok := r.index[column]; ok {
		return i
	}
	i := len(r.columns)
	r.columns = append(r.columns, column)
	r.index[column] = i
	r.values = append(r.values, nil)
	r.set = append(r.set, false)
	return i
}

// AdHoc reports whether the row accepts undeclared columns.
func (r *Row) AdHoc() bool {
	return r.adHoc
}

// Set assigns a value to a column.
// Strict rows reject undeclared columns with a SchemaViolationError;
// ad-hoc rows declare them on first use.
func (r *Row) Set(column string, value any) error {
	i, ok := r.index[column]
	if !ok {
		if !r.adHoc {
			return newUndeclaredColumnError(column)
		}
		i = r.declare(column)
	}
	r.values[i] = value
	r.set[i] = true
	return nil
}

// Get returns the value for column and whether it has been set.
// A declared-but-unset column reports false.
func (r *Row) Get(column string) (any, bool) {
	i, ok := r.index[column]
	if !ok || !r.set[i] {
		return nil, false
	}
	return r.values[i], true
}

// Has reports whether column has been set on this row.
func (r *Row) Has(column string) bool {
	_, ok := r.Get(column)
	return ok
}

// Columns returns the row's column names in declaration order.
// The returned slice is a copy.
func (r *Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of declared columns.
func (r *Row) Len() int {
	return len(r.columns)
}
