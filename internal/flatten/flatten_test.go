package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []Cell
	}{
		{
			name: "nested object",
			raw:  `{"a":{"b":1,"c":null}}`,
			want: []Cell{{"a - b", "1"}, {"a - c", ""}},
		},
		{
			name: "array of scalars and objects",
			raw:  `{"tags":["x","y",{"k":1}]}`,
			want: []Cell{{"tags", `x; y; {"k":1}`}},
		},
		{
			name: "invalid json",
			raw:  `not json`,
			want: []Cell{{RawDataKey, "not json"}},
		},
		{
			name: "document key order",
			raw:  `{"zeta":"1","alpha":"2","mid":{"y":true,"x":false}}`,
			want: []Cell{{"zeta", "1"}, {"alpha", "2"}, {"mid - y", "true"}, {"mid - x", "false"}},
		},
		{
			name: "integer keys first",
			raw:  `{"b":"1","10":"x","2":"y","a":"2","02":"z","-1":"w"}`,
			want: []Cell{{"2", "y"}, {"10", "x"}, {"b", "1"}, {"a", "2"}, {"02", "z"}, {"-1", "w"}},
		},
		{
			name: "repeated key keeps first position",
			raw:  `{"a":"1","b":"2","a":"3"}`,
			want: []Cell{{"a", "3"}, {"b", "2"}},
		},
		{
			name: "array element encodings",
			raw:  `{"a":[1.5, null, [1, 2], { "k" : "v" }],"empty":[]}`,
			want: []Cell{{"a", `1.5; null; [1,2]; {"k":"v"}`}, {"empty", ""}},
		},
		{
			name: "empty nested object contributes nothing",
			raw:  `{"a":{},"b":"x"}`,
			want: []Cell{{"b", "x"}},
		},
		{
			name: "top level scalar",
			raw:  `"just text"`,
			want: []Cell{{ValueKey, "just text"}},
		},
		{
			name: "top level null",
			raw:  `null`,
			want: []Cell{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Flatten(tc.raw))
		})
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	raw := `{"b":{"c":[1,{"d":2}]},"a":"x"}`
	assert.Equal(t, Flatten(raw), Flatten(raw))
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		1:       "1",
		-2.5:    "-2.5",
		100:     "100",
		0.1:     "0.1",
		1e21:    "1e+21",
		1e-7:    "1e-7",
		0.00001: "0.00001",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatNumber(in), "%v", in)
	}
}
