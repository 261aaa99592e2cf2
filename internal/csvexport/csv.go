// Package csvexport renders ordered rows as CSV text for spreadsheet download.
package csvexport

import (
	"io"
	"strings"
)

// BOM marks the output as UTF-8 for spreadsheet applications.
const BOM = "\uFEFF"

// Row is an insertion-ordered string map. Setting an existing key keeps its position.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow builds a row from alternating key, value pairs.
func NewRow(kv ...string) *Row {
	r := &Row{values: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

func (r *Row) Set(key, value string) {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the column names in insertion order.
func (r *Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r *Row) Len() int { return len(r.keys) }

type options struct {
	bom      bool
	superset bool
}

// Option tunes Encode.
type Option func(*options)

// WithBOM prefixes the output with a UTF-8 byte order mark.
func WithBOM() Option { return func(o *options) { o.bom = true } }

// WithSupersetHeader uses every key seen across all rows, in first-seen order,
// instead of only the first row's keys.
func WithSupersetHeader() Option { return func(o *options) { o.superset = true } }

// Encode renders rows as CSV. Without rows it returns "".
func Encode(rows []*Row, opts ...Option) string {
	var b strings.Builder
	_ = Write(&b, rows, opts...)
	return b.String()
}

// Write streams the CSV encoding of rows to w.
func Write(w io.Writer, rows []*Row, opts ...Option) error {
	if len(rows) == 0 {
		return nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	header := Header(rows, o.superset)
	var b strings.Builder
	if o.bom {
		b.WriteString(BOM)
	}
	// Header cells are quoted like data so nested keys with commas keep their column.
	writeLine(&b, header)
	cells := make([]string, len(header))
	for _, r := range rows {
		for i, key := range header {
			cells[i], _ = r.Get(key)
		}
		b.WriteByte('\n')
		writeLine(&b, cells)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Header returns the column list: the first row's keys, or the union of all keys when superset is set.
func Header(rows []*Row, superset bool) []string {
	if len(rows) == 0 {
		return nil
	}
	if !superset {
		return rows[0].Keys()
	}
	seen := map[string]bool{}
	var header []string
	for _, r := range rows {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	return header
}

func writeLine(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Escape(c))
	}
}

// Escape quotes a cell only when it contains a comma, a double quote or a newline.
func Escape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
