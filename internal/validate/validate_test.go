package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdeck/internal/fields"
)

func TestValidate(t *testing.T) {
	name := fields.Field{ID: "name", Type: fields.Text, Required: true}
	email := fields.Field{ID: "email", Type: fields.Email}
	reqEmail := fields.Field{ID: "email", Type: fields.Email, Required: true}
	boxes := fields.Field{ID: "boxes", Type: fields.Checkbox, Required: true, Options: []string{"a"}}

	cases := []struct {
		name   string
		fields []fields.Field
		values map[string]any
		want   Errors
	}{
		{"required empty string", []fields.Field{name}, map[string]any{"name": ""}, Errors{"name": RequiredMessage}},
		{"required missing", []fields.Field{name}, map[string]any{}, Errors{"name": RequiredMessage}},
		{"required nil", []fields.Field{name}, map[string]any{"name": nil}, Errors{"name": RequiredMessage}},
		{"whitespace counts as answered", []fields.Field{name}, map[string]any{"name": " "}, Errors{}},
		{"optional email bad", []fields.Field{email}, map[string]any{"email": "bad"}, Errors{"email": EmailMessage}},
		{"optional email empty", []fields.Field{email}, map[string]any{"email": ""}, Errors{}},
		{"email ok", []fields.Field{reqEmail}, map[string]any{"email": "a@b.co"}, Errors{}},
		{"email with space", []fields.Field{email}, map[string]any{"email": "a b@c.de"}, Errors{"email": EmailMessage}},
		{"email with nbsp", []fields.Field{email}, map[string]any{"email": "a\u00a0b@c.de"}, Errors{"email": EmailMessage}},
		{"email with em space", []fields.Field{email}, map[string]any{"email": "ab@c.d\u2003e"}, Errors{"email": EmailMessage}},
		{"email with vertical tab", []fields.Field{email}, map[string]any{"email": "a\vb@c.de"}, Errors{"email": EmailMessage}},
		{"email with bom", []fields.Field{email}, map[string]any{"email": "ab@\ufeffc.de"}, Errors{"email": EmailMessage}},
		{"email with line separator", []fields.Field{email}, map[string]any{"email": "ab@c.de\u2028x"}, Errors{"email": EmailMessage}},
		{"email non-ascii letters", []fields.Field{email}, map[string]any{"email": "zoë@exämple.de"}, Errors{}},
		{"empty checkbox", []fields.Field{boxes}, map[string]any{"boxes": []string{}}, Errors{"boxes": RequiredMessage}},
		{"empty decoded checkbox", []fields.Field{boxes}, map[string]any{"boxes": []any{}}, Errors{"boxes": RequiredMessage}},
		{"checked checkbox", []fields.Field{boxes}, map[string]any{"boxes": []string{"a"}}, Errors{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.fields, tc.values)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, len(tc.want) == 0, got.OK())
		})
	}
}

func TestValidateRequiredAndOptionalEmail(t *testing.T) {
	fs := []fields.Field{
		{ID: "name", Type: fields.Text, Required: true},
		{ID: "email", Type: fields.Email},
	}
	errs := Validate(fs, map[string]any{"name": "", "email": "bad"})
	assert.Equal(t, Errors{"name": RequiredMessage, "email": EmailMessage}, errs)

	errs = Validate(fs, map[string]any{"name": "Ada", "email": "ada@example.com"})
	assert.True(t, errs.OK())
}

func TestHiddenFieldsSkipped(t *testing.T) {
	fs := []fields.Field{
		{ID: "contact", Type: fields.Radio, Options: []string{"yes", "no"}},
		{ID: "phone", Type: fields.Text, Required: true, VisibleWhen: `contact == "yes"`},
	}
	assert.True(t, Validate(fs, map[string]any{"contact": "no"}).OK())
	assert.Equal(t, Errors{"phone": RequiredMessage}, Validate(fs, map[string]any{"contact": "yes"}))
}

func TestBrokenRuleKeepsFieldVisible(t *testing.T) {
	f := fields.Field{ID: "x", Type: fields.Text, Required: true, VisibleWhen: "nope +"}
	visible, err := Visible(f, Env([]fields.Field{f}, nil))
	assert.True(t, visible)
	assert.Error(t, err)
	assert.Equal(t, Errors{"x": RequiredMessage}, Validate([]fields.Field{f}, nil))
}

func TestCheckExpression(t *testing.T) {
	fs := []fields.Field{{ID: "age", Type: fields.Number}}
	require.NoError(t, CheckExpression(`age != ""`, fs))
	assert.Error(t, CheckExpression(`unknown_field == 1`, fs))
}
