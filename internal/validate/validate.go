// Package validate checks submitted values against their field definitions.
package validate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"formdeck/internal/fields"
)

const (
	RequiredMessage = "This field is required"
	EmailMessage    = "Please enter a valid email address"
)

// notSpace excludes every character a browser treats as whitespace, not only ASCII.
const notSpace = `[^\s\v\p{Z}\x{FEFF}@]+`

var emailPattern = regexp.MustCompile(`^` + notSpace + `@` + notSpace + `\.` + notSpace + `$`)

// Errors maps field id to a user-facing message.
type Errors map[string]string

// OK reports whether no field failed.
func (e Errors) OK() bool { return len(e) == 0 }

// Validate returns the error map for values under fs. Hidden fields are skipped.
func Validate(fs []fields.Field, values map[string]any) Errors {
	errs := Errors{}
	env := Env(fs, values)
	for _, f := range fs {
		if visible, _ := Visible(f, env); !visible {
			continue
		}
		v := values[f.ID]
		if f.Required && IsEmpty(v) {
			errs[f.ID] = RequiredMessage
		}
		if f.Type == fields.Email && !IsEmpty(v) && !ValidEmail(fields.Scalar(v)) {
			errs[f.ID] = EmailMessage
		}
	}
	return errs
}

// IsEmpty reports whether v counts as "no answer".
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case *fields.FileRef:
		return x == nil
	default:
		return false
	}
}

// ValidEmail applies the address pattern used for email fields.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Env builds the expression environment for visibility rules: every field id bound to its current value.
func Env(fs []fields.Field, values map[string]any) map[string]any {
	env := make(map[string]any, len(fs))
	for _, f := range fs {
		env[f.ID] = fields.Normalize(f.Type, values[f.ID])
	}
	return env
}

// Visible evaluates f.VisibleWhen against env. Fields without a rule, or whose rule
// fails to compile or run, are visible.
func Visible(f fields.Field, env map[string]any) (bool, error) {
	if strings.TrimSpace(f.VisibleWhen) == "" {
		return true, nil
	}
	ok, err := evaluateExpression(f.VisibleWhen, env)
	if err != nil {
		return true, err
	}
	return ok, nil
}

// CheckExpression reports whether a visibility rule compiles against the given fields.
func CheckExpression(expression string, fs []fields.Field) error {
	_, err := expr.Compile(expression, expr.Env(Env(fs, nil)), expr.AsBool())
	return err
}

func evaluateExpression(expression string, input map[string]any) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(input))
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, input)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, errors.New("expression did not return a boolean")
	}
	return result, nil
}
