// Package snapshot reads dated registry snapshots and exposes them as
// ordered, column-addressable datasets. Backends: local filesystem
// (scraper output), S3 (the scraper drop bucket), and Snowflake (the
// production registry mirror).
package snapshot

import "strings"

// Dataset is one parsed snapshot: an ordered row collection with
// header-addressable columns. Values are raw strings; typing happens at
// the mapping boundary (MapRecords) or inside validation rules.
type Dataset struct {
	headers []string
	index   map[string]int
	rows    [][]string
}

// NewDataset builds a dataset from a header row and data rows. Headers
// are trimmed; rows are assumed already padded/truncated to the header
// width by the parser.
func NewDataset(headers []string, rows [][]string) *Dataset {
	idx := make(map[string]int, len(headers))
	clean := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		clean[i] = h
		idx[h] = i
	}
	return &Dataset{headers: clean, index: idx, rows: rows}
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Headers returns the column names in file order.
func (d *Dataset) Headers() []string { return d.headers }

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns all values of the named column in row order, or nil if
// the column does not exist.
func (d *Dataset) Column(name string) []string {
	i, ok := d.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out
}

// Value returns the cell at (row, column), empty when the column is
// missing.
func (d *Dataset) Value(row int, name string) string {
	i, ok := d.index[name]
	if !ok {
		return ""
	}
	return d.rows[row][i]
}

// ResolveColumn returns the first of name and its aliases that exists
// in the dataset. The alias table is explicit per source type so every
// accepted rename is enumerable and testable.
func (d *Dataset) ResolveColumn(name string, aliases map[string][]string) (string, bool) {
	if d.HasColumn(name) {
		return name, true
	}
	for _, alt := range aliases[name] {
		if d.HasColumn(alt) {
			return alt, true
		}
	}
	return "", false
}
