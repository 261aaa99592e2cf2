// Package session holds the in-progress state of one builder or respondent session.
package session

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"formdeck/internal/domain"
	"formdeck/internal/fields"
	"formdeck/internal/validate"
)

var (
	ErrUnknownField   = errors.New("unknown field")
	ErrNotPermutation = errors.New("new order must contain exactly the current fields")
	ErrBusy           = errors.New("another request is in flight")
	ErrDuplicateField = errors.New("duplicate field id")
)

// Snapshot is a consistent copy of the store state.
type Snapshot struct {
	FormID      string          `json:"form_id,omitempty"`
	Metadata    domain.Metadata `json:"metadata"`
	Fields      []fields.Field  `json:"fields"`
	Values      map[string]any  `json:"values"`
	Errors      validate.Errors `json:"errors"`
	Saving      bool            `json:"saving"`
	Submitting  bool            `json:"submitting"`
	Submitted   bool            `json:"submitted"`
	SubmitError string          `json:"submit_error,omitempty"`
}

// Store holds metadata, ordered fields, values and errors for one session.
// Every method is a single atomic transition; keys of values and errors always
// name existing fields.
type Store struct {
	mu          sync.RWMutex
	formID      string
	metadata    domain.Metadata
	fields      []fields.Field
	values      map[string]any
	errors      validate.Errors
	saving      bool
	submitting  bool
	submitted   bool
	submitError string
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the field id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithForm seeds the store from a persisted form.
func WithForm(f domain.Form) Option {
	return func(s *Store) { s.load(f) }
}

// New returns an empty session.
func New(opts ...Option) *Store {
	s := &Store{newID: fields.NewID}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) reset() {
	s.formID = ""
	s.metadata = domain.Metadata{Title: domain.DefaultTitle}
	s.fields = nil
	s.values = map[string]any{}
	s.errors = validate.Errors{}
	s.saving = false
	s.submitting = false
	s.submitted = false
	s.submitError = ""
}

func (s *Store) load(f domain.Form) {
	s.reset()
	s.formID = f.ID
	s.metadata = f.Metadata()
	s.fields = fields.Clone(f.Fields)
}

// LoadInput starts a new draft from a definition, keeping its field ids so that
// visibility rules referring to them still resolve. Blank ids are generated.
func (s *Store) LoadInput(in domain.FormInput) error {
	fs := make([]fields.Field, 0, len(in.Fields))
	seen := map[string]bool{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range in.Fields {
		t, err := fields.ParseType(string(f.Type))
		if err != nil {
			return fmt.Errorf("field %d: %w", i+1, fields.ErrUnknownType)
		}
		f.Type = t
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			f.ID = s.newID()
		}
		if seen[f.ID] {
			return fmt.Errorf("field %q: %w", f.ID, ErrDuplicateField)
		}
		seen[f.ID] = true
		if !t.HasOptions() {
			f.Options = nil
		} else {
			f.Options = append([]string(nil), f.Options...)
		}
		f.Order = i
		fs = append(fs, f)
	}
	s.reset()
	s.metadata = in.Metadata
	if strings.TrimSpace(s.metadata.Title) == "" {
		s.metadata.Title = domain.DefaultTitle
	}
	s.fields = fs
	return nil
}

// Load replaces the whole session with a persisted form.
func (s *Store) Load(f domain.Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(f)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		FormID:      s.formID,
		Metadata:    s.metadata,
		Fields:      fields.Clone(s.fields),
		Values:      maps.Clone(s.values),
		Errors:      maps.Clone(s.errors),
		Saving:      s.saving,
		Submitting:  s.submitting,
		Submitted:   s.submitted,
		SubmitError: s.submitError,
	}
}

func (s *Store) FormID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formID
}

func (s *Store) Fields() []fields.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fields.Clone(s.fields)
}

func (s *Store) Value(id string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id]
}

func (s *Store) Errors() validate.Errors {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.errors)
}

// MetadataPatch updates only the non-nil members.
type MetadataPatch struct {
	Title       *string
	Description *string
	OwnerName   *string
}

func (s *Store) UpdateMetadata(p MetadataPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Title != nil {
		s.metadata.Title = *p.Title
	}
	if p.Description != nil {
		s.metadata.Description = *p.Description
	}
	if p.OwnerName != nil {
		s.metadata.OwnerName = *p.OwnerName
	}
}

// AddField appends a field of type t with palette defaults.
func (s *Store) AddField(t fields.Type) (fields.Field, error) {
	if !t.Known() {
		return fields.Field{}, fmt.Errorf("add field: %w", fields.ErrUnknownType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := fields.New(t, s.newID())
	f.Order = len(s.fields)
	s.fields = append(s.fields, f)
	return f, nil
}

// FieldPatch updates only the non-nil members of a field.
type FieldPatch struct {
	Type        *fields.Type
	Label       *string
	Required    *bool
	Placeholder *string
	Options     *[]string
	VisibleWhen *string
}

// UpdateField merges p into the field id. Changing the type drops the stale value.
func (s *Store) UpdateField(id string, p FieldPatch) (fields.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.fields, id)
	if i < 0 {
		return fields.Field{}, fmt.Errorf("update field %s: %w", id, ErrUnknownField)
	}
	f := s.fields[i]
	if p.Type != nil && *p.Type != f.Type {
		if !p.Type.Known() {
			return fields.Field{}, fmt.Errorf("update field %s: %w", id, fields.ErrUnknownType)
		}
		f.Type = *p.Type
		switch {
		case !f.Type.HasOptions():
			f.Options = nil
		case len(f.Options) == 0:
			f.Options = append([]string(nil), fields.DefaultOptions...)
		}
		delete(s.values, id)
		delete(s.errors, id)
	}
	if p.Label != nil {
		f.Label = *p.Label
	}
	if p.Required != nil {
		f.Required = *p.Required
	}
	if p.Placeholder != nil {
		f.Placeholder = *p.Placeholder
	}
	if p.Options != nil && f.Type.HasOptions() {
		f.Options = append([]string(nil), (*p.Options)...)
	}
	if p.VisibleWhen != nil {
		f.VisibleWhen = *p.VisibleWhen
	}
	s.fields[i] = f
	return f, nil
}

// DeleteField removes the field together with its value and error. Unknown ids are ignored.
func (s *Store) DeleteField(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.fields, id)
	if i < 0 {
		return
	}
	s.fields = append(s.fields[:i:i], s.fields[i+1:]...)
	delete(s.values, id)
	delete(s.errors, id)
}

// ReorderFields replaces the field order. seq must be a permutation of the current fields.
func (s *Store) ReorderFields(seq []fields.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(seq) != len(s.fields) {
		return ErrNotPermutation
	}
	seen := make(map[string]bool, len(seq))
	for _, f := range seq {
		if seen[f.ID] || indexOf(s.fields, f.ID) < 0 {
			return ErrNotPermutation
		}
		seen[f.ID] = true
	}
	s.fields = fields.Clone(seq)
	return nil
}

// MoveField is the drag-and-drop gesture: sourceID lands where targetID was.
func (s *Store) MoveField(sourceID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = Reorder(s.fields, sourceID, targetID)
}

// UpdateValue stores the typed value of a field and clears its pending error.
func (s *Store) UpdateValue(id string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.fields, id)
	if i < 0 {
		return fmt.Errorf("update value %s: %w", id, ErrUnknownField)
	}
	s.values[id] = fields.Normalize(s.fields[i].Type, v)
	delete(s.errors, id)
	return nil
}

// SetErrors replaces the error map. Entries for unknown fields are dropped.
func (s *Store) SetErrors(errs validate.Errors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = validate.Errors{}
	for id, msg := range errs {
		if indexOf(s.fields, id) >= 0 {
			s.errors[id] = msg
		}
	}
}

func (s *Store) ClearError(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errors, id)
}

func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = validate.Errors{}
}

// Validate recomputes the error map from the current values and reports whether it is empty.
func (s *Store) Validate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = validate.Validate(s.fields, s.values)
	return s.errors.OK()
}

// ResetAll returns the session to a fresh, empty draft.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// ResetValues clears answers and submit state but keeps the form definition.
func (s *Store) ResetValues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]any{}
	s.errors = validate.Errors{}
	s.submitted = false
	s.submitError = ""
}
