package fields

import (
	"errors"
	"slices"
)

// Control names the widget an Element should be drawn as.
type Control string

const (
	ControlInput         Control = "input"
	ControlTextarea      Control = "textarea"
	ControlSelect        Control = "select"
	ControlCheckboxGroup Control = "checkbox-group"
	ControlRadioGroup    Control = "radio-group"
	ControlFile          Control = "file"
	ControlUnknown       Control = "unknown"
)

// UnknownTypeMessage is shown in place of a field whose type is not in the taxonomy.
const UnknownTypeMessage = "Unknown field type"

// SelectPrompt labels the empty option of a select control.
const SelectPrompt = "Select an option"

const textareaRows = 3

var (
	ErrDisabled    = errors.New("element is disabled")
	ErrUnknownType = errors.New("unknown field type")
)

// Option is one entry of a choice control.
type Option struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// Element describes an interactive input for one field.
type Element struct {
	Control     Control  `json:"control"`
	InputType   string   `json:"input_type,omitempty"`
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Required    bool     `json:"required"`
	Disabled    bool     `json:"disabled"`
	Rows        int      `json:"rows,omitempty"`
	Value       string   `json:"value,omitempty"`
	Options     []Option `json:"options,omitempty"`
	File        *FileRef `json:"file,omitempty"`
	Message     string   `json:"message,omitempty"`

	field    Field
	current  any
	onChange func(any)
}

// Event is a raw UI interaction: typed text, a toggled option or a chosen file.
type Event struct {
	Value   string
	Checked bool
	File    *FileRef
}

type kind interface {
	render(f Field, value any) Element
	parse(f Field, current any, ev Event) any
}

var kinds = map[Type]kind{
	Text:     inputKind{inputType: "text"},
	Email:    inputKind{inputType: "email"},
	Number:   inputKind{inputType: "number"},
	URL:      inputKind{inputType: "url"},
	Date:     inputKind{inputType: "date"},
	Textarea: textareaKind{},
	Select:   selectKind{},
	Radio:    radioKind{},
	Checkbox: checkboxKind{},
	File:     fileKind{},
}

// Render describes field f holding value. onChange receives typed values produced by Element.Handle.
func Render(f Field, value any, onChange func(any), disabled bool) Element {
	k, ok := kinds[f.Type]
	if !ok {
		return Element{
			Control:  ControlUnknown,
			ID:       f.ID,
			Label:    f.Label,
			Required: f.Required,
			Disabled: disabled,
			Message:  UnknownTypeMessage,
			field:    f,
		}
	}
	el := k.render(f, value)
	el.ID = f.ID
	el.Label = f.Label
	el.Required = f.Required
	el.Disabled = disabled
	el.field = f
	el.current = value
	el.onChange = onChange
	return el
}

// Handle parses ev into a typed value and passes it to the change callback.
func (e Element) Handle(ev Event) error {
	if e.Disabled {
		return ErrDisabled
	}
	v, err := Parse(e.field, e.current, ev)
	if err != nil {
		return err
	}
	if e.onChange != nil {
		e.onChange(v)
	}
	return nil
}

// Parse turns a raw event on field f into its typed value given the current value.
func Parse(f Field, current any, ev Event) (any, error) {
	k, ok := kinds[f.Type]
	if !ok {
		return nil, ErrUnknownType
	}
	return k.parse(f, current, ev), nil
}

type inputKind struct{ inputType string }

func (k inputKind) render(f Field, value any) Element {
	return Element{Control: ControlInput, InputType: k.inputType, Placeholder: f.Placeholder, Value: Scalar(value)}
}

func (inputKind) parse(_ Field, _ any, ev Event) any { return ev.Value }

type textareaKind struct{}

func (textareaKind) render(f Field, value any) Element {
	return Element{Control: ControlTextarea, Placeholder: f.Placeholder, Rows: textareaRows, Value: Scalar(value)}
}

func (textareaKind) parse(_ Field, _ any, ev Event) any { return ev.Value }

type selectKind struct{}

func (selectKind) render(f Field, value any) Element {
	current := Scalar(value)
	opts := make([]Option, 0, len(f.Options)+1)
	opts = append(opts, Option{Label: SelectPrompt, Value: "", Selected: current == ""})
	for _, o := range f.Options {
		opts = append(opts, Option{Label: o, Value: o, Selected: current != "" && o == current})
	}
	return Element{Control: ControlSelect, Placeholder: f.Placeholder, Value: current, Options: opts}
}

func (selectKind) parse(_ Field, _ any, ev Event) any { return ev.Value }

type radioKind struct{}

func (radioKind) render(f Field, value any) Element {
	current := Scalar(value)
	opts := make([]Option, 0, len(f.Options))
	for _, o := range f.Options {
		opts = append(opts, Option{Label: o, Value: o, Selected: current != "" && o == current})
	}
	return Element{Control: ControlRadioGroup, Name: f.ID, Value: current, Options: opts}
}

func (radioKind) parse(_ Field, _ any, ev Event) any { return ev.Value }

type checkboxKind struct{}

func (checkboxKind) render(f Field, value any) Element {
	selected := Choices(value)
	opts := make([]Option, 0, len(f.Options))
	for _, o := range f.Options {
		opts = append(opts, Option{Label: o, Value: o, Selected: slices.Contains(selected, o)})
	}
	return Element{Control: ControlCheckboxGroup, Options: opts}
}

// parse toggles ev.Value: checking appends it, unchecking removes it.
func (checkboxKind) parse(_ Field, current any, ev Event) any {
	selected := Choices(current)
	if ev.Checked {
		if !slices.Contains(selected, ev.Value) {
			selected = append(selected, ev.Value)
		}
		return selected
	}
	return slices.DeleteFunc(selected, func(s string) bool { return s == ev.Value })
}

type fileKind struct{}

func (fileKind) render(_ Field, value any) Element {
	el := Element{Control: ControlFile, InputType: "file"}
	if ref, ok := Normalize(File, value).(*FileRef); ok && ref != nil {
		el.File = ref
		el.Value = ref.Name
	}
	return el
}

func (fileKind) parse(_ Field, _ any, ev Event) any {
	if ev.File == nil {
		return nil
	}
	return ev.File
}
