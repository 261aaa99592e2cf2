package fields

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Type is one of the closed set of field types a form can carry.
type Type string

const (
	Text     Type = "text"
	Email    Type = "email"
	Number   Type = "number"
	Textarea Type = "textarea"
	Select   Type = "select"
	Checkbox Type = "checkbox"
	Radio    Type = "radio"
	Date     Type = "date"
	File     Type = "file"
	URL      Type = "url"
)

var allTypes = []Type{Text, Email, Number, Textarea, Select, Checkbox, Radio, Date, File, URL}

// All returns every known field type in palette order.
func All() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Known reports whether t belongs to the taxonomy.
func (t Type) Known() bool {
	_, ok := kinds[t]
	return ok
}

// HasOptions reports whether fields of this type carry a choice list.
func (t Type) HasOptions() bool {
	return t == Select || t == Radio || t == Checkbox
}

func (t Type) String() string { return string(t) }

// ParseType maps a string to a known Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Known() {
		return "", fmt.Errorf("invalid field type %q", s)
	}
	return t, nil
}

// Field is a single question definition within a form.
type Field struct {
	ID          string   `json:"id" yaml:"id"`
	Type        Type     `json:"type" yaml:"type"`
	Label       string   `json:"label" yaml:"label"`
	Required    bool     `json:"required" yaml:"required"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Order       int      `json:"order" yaml:"order"`
	VisibleWhen string   `json:"visible_when,omitempty" yaml:"visible_when,omitempty"`
}

// FileRef references an uploaded file; the content itself is never kept in a session.
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// DefaultOptions seeds choice fields created from the palette.
var DefaultOptions = []string{"Option 1", "Option 2"}

// DefaultLabel is the label a freshly added field receives, e.g. "Email Field".
func DefaultLabel(t Type) string {
	s := string(t)
	if s == "" {
		return "Field"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Field"
}

// DefaultPlaceholder is the placeholder a freshly added field receives.
func DefaultPlaceholder(t Type) string {
	return "Enter " + string(t)
}

// New builds a field of type t with palette defaults.
func New(t Type, id string) Field {
	f := Field{
		ID:          id,
		Type:        t,
		Label:       DefaultLabel(t),
		Placeholder: DefaultPlaceholder(t),
	}
	if t.HasOptions() {
		f.Options = append([]string(nil), DefaultOptions...)
	}
	return f
}

// NewID returns an id shaped like field_<unix-ms>_<9 base36 chars>.
func NewID() string {
	return newID(time.Now(), rand.Int63())
}

func newID(now time.Time, n int64) string {
	suffix := strconv.FormatInt(n, 36)
	for len(suffix) < 9 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("field_%d_%s", now.UnixMilli(), suffix[len(suffix)-9:])
}

// Clone returns a deep copy of fs.
func Clone(fs []Field) []Field {
	if fs == nil {
		return nil
	}
	out := make([]Field, len(fs))
	for i, f := range fs {
		out[i] = f
		if f.Options != nil {
			out[i].Options = append([]string(nil), f.Options...)
		}
	}
	return out
}

// Normalize converts a decoded JSON value into the runtime shape for type t:
// string for scalar types, []string for checkbox, *FileRef for file.
func Normalize(t Type, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case Checkbox:
		return Choices(v)
	case File:
		switch x := v.(type) {
		case *FileRef:
			return x
		case FileRef:
			return &x
		case string:
			if x == "" {
				return nil
			}
			return &FileRef{Name: x}
		case map[string]any:
			ref := &FileRef{}
			ref.Name, _ = x["name"].(string)
			ref.ContentType, _ = x["content_type"].(string)
			if size, ok := x["size"].(float64); ok {
				ref.Size = int64(size)
			}
			return ref
		}
		return v
	default:
		return Scalar(v)
	}
}

// Scalar renders a value as the string an input control would hold.
func Scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case *FileRef:
		if x == nil {
			return ""
		}
		return x.Name
	default:
		return fmt.Sprint(x)
	}
}

// Choices extracts the selected options of a checkbox value.
func Choices(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string{}, x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
