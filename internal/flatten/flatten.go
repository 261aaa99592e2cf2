// Package flatten turns stored submission payloads into ordered key/value cells
// suitable for a single spreadsheet row.
package flatten

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// KeySeparator joins nested object keys.
	KeySeparator = " - "
	// ListSeparator joins array elements.
	ListSeparator = "; "
	// RawDataKey holds the original text of a payload that is not valid JSON.
	RawDataKey = "Raw Data"
	// ValueKey names the single cell of a payload that is not an object.
	ValueKey = "Value"
)

// Cell is one flattened column.
type Cell struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Flatten parses raw and flattens it. Keys follow JavaScript property order:
// integer-like keys ascending, then the rest in document order.
func Flatten(raw string) []Cell {
	if !gjson.Valid(raw) {
		return []Cell{{Key: RawDataKey, Value: raw}}
	}
	root := gjson.Parse(raw)
	switch {
	case root.Type == gjson.Null:
		return []Cell{}
	case root.IsObject():
		return appendValue(nil, root, "")
	default:
		return appendValue(nil, root, ValueKey)
	}
}

// Value flattens an already valid JSON value under prefix.
func Value(v gjson.Result, prefix string) []Cell {
	return appendValue(nil, v, prefix)
}

func appendValue(out []Cell, v gjson.Result, prefix string) []Cell {
	switch {
	case v.Type == gjson.Null:
		return append(out, Cell{Key: prefix, Value: ""})
	case v.IsObject():
		for _, m := range members(v) {
			out = appendValue(out, m.value, join(prefix, m.key))
		}
		return out
	case v.IsArray():
		var items []string
		v.ForEach(func(_, item gjson.Result) bool {
			items = append(items, arrayItem(item))
			return true
		})
		return append(out, Cell{Key: prefix, Value: strings.Join(items, ListSeparator)})
	default:
		return append(out, Cell{Key: prefix, Value: scalar(v)})
	}
}

type member struct {
	key   string
	value gjson.Result
}

// members lists an object's properties in JavaScript enumeration order. A repeated
// key keeps its first position and its last value.
func members(obj gjson.Result) []member {
	var out []member
	pos := map[string]int{}
	obj.ForEach(func(key, value gjson.Result) bool {
		if i, ok := pos[key.Str]; ok {
			out[i].value = value
			return true
		}
		pos[key.Str] = len(out)
		out = append(out, member{key: key.Str, value: value})
		return true
	})
	slices.SortStableFunc(out, func(a, b member) int {
		ai, aok := arrayIndex(a.key)
		bi, bok := arrayIndex(b.key)
		switch {
		case aok && bok:
			return cmp.Compare(ai, bi)
		case aok:
			return -1
		case bok:
			return 1
		}
		return 0
	})
	return out
}

// arrayIndex reports whether key is a canonical uint32 array index.
func arrayIndex(key string) (uint64, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return n, true
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + KeySeparator + key
}

// arrayItem encodes objects, arrays and null as compact JSON and everything else as text.
func arrayItem(v gjson.Result) string {
	if v.Type == gjson.Null {
		return "null"
	}
	if v.IsObject() || v.IsArray() {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return v.Raw
		}
		return buf.String()
	}
	return scalar(v)
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return FormatNumber(v.Num)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return v.Raw
	}
}

// FormatNumber writes f the way a JavaScript runtime stringifies numbers:
// plain decimals between 1e-6 and 1e21, exponent form outside.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}
