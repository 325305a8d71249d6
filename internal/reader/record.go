package reader

import "strings"

// Record is one data line zipped against the file header. Column order
// follows the header; values are nil when the field was empty or one of the
// null literals (NULL, NaN, case-insensitive).
type Record struct {
	columns []string // shared with the reader's header, never mutated
	values  []*string
}

// NewRecord zips fields against columns, normalizing nulls. Missing trailing
// fields are null.
func NewRecord(columns []string, fields []string) Record {
	values := make([]*string, len(columns))
	for i := range columns {
		if i < len(fields) {
			values[i] = normalizeValue(fields[i])
		}
	}
	return Record{columns: columns, values: values}
}

// normalizeValue trims the raw field and maps empty strings and the null
// literals to nil.
func normalizeValue(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "NULL") || strings.EqualFold(v, "NaN") {
		return nil
	}
	return &v
}

// Columns returns the header columns in file order.
func (r Record) Columns() []string { return r.columns }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.columns) }

// Get returns the value for a column. ok is false when the column does not
// exist or the value is null.
func (r Record) Get(column string) (string, bool) {
	for i, c := range r.columns {
		if c == column {
			if r.values[i] == nil {
				return "", false
			}
			return *r.values[i], true
		}
	}
	return "", false
}

// IsNull reports whether the column exists and holds a null value.
func (r Record) IsNull(column string) bool {
	for i, c := range r.columns {
		if c == column {
			return r.values[i] == nil
		}
	}
	return false
}

// ToMap converts the record to a map with nil for null values.
func (r Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		if r.values[i] == nil {
			m[c] = nil
		} else {
			m[c] = *r.values[i]
		}
	}
	return m
}
