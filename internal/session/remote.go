package session

import (
	"context"
	"errors"
	"maps"
	"strings"

	"formdeck/internal/domain"
	"formdeck/internal/fields"
	"formdeck/internal/validate"
)

var (
	ErrTitleRequired = errors.New("form title is required")
	ErrOwnerRequired = errors.New("owner name is required")
	ErrNoFields      = errors.New("add at least one field")
)

// FormSaver persists form definitions.
type FormSaver interface {
	CreateForm(ctx context.Context, in domain.FormInput) (domain.Form, error)
	UpdateForm(ctx context.Context, id string, in domain.FormInput) (domain.Form, error)
	PublishForm(ctx context.Context, id string, published bool) (domain.Form, error)
}

// Submitter records a respondent's answers.
type Submitter interface {
	Submit(ctx context.Context, formID string, data map[string]any, submitterName string) (domain.Submission, error)
}

// InvalidError is returned when local validation blocks a submit.
type InvalidError struct {
	Errors validate.Errors
}

func (e *InvalidError) Error() string {
	return "form has invalid fields"
}

// Input returns the draft as a form definition with dense field order.
func (s *Store) Input() domain.FormInput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input()
}

func (s *Store) input() domain.FormInput {
	fs := fields.Clone(s.fields)
	for i := range fs {
		fs[i].Order = i
	}
	return domain.FormInput{Metadata: s.metadata, Fields: fs}
}

func checkDraft(in domain.FormInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return ErrTitleRequired
	case strings.TrimSpace(in.OwnerName) == "":
		return ErrOwnerRequired
	case len(in.Fields) == 0:
		return ErrNoFields
	}
	return nil
}

// Save creates the form on first call and replaces it afterwards. It returns the
// id confirmed by the backend.
func (s *Store) Save(ctx context.Context, api FormSaver) (string, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return "", ErrBusy
	}
	in := s.input()
	if err := checkDraft(in); err != nil {
		s.mu.Unlock()
		return "", err
	}
	id := s.formID
	s.saving = true
	s.mu.Unlock()

	var (
		form domain.Form
		err  error
	)
	if id == "" {
		form, err = api.CreateForm(ctx, in)
	} else {
		form, err = api.UpdateForm(ctx, id, in)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		return "", err
	}
	s.formID = form.ID
	return form.ID, nil
}

// Publish saves the draft and publishes the id the save returned.
func (s *Store) Publish(ctx context.Context, api FormSaver) (domain.Form, error) {
	id, err := s.Save(ctx, api)
	if err != nil {
		return domain.Form{}, err
	}
	return api.PublishForm(ctx, id, true)
}

// Submit validates the current values and, when clean, sends them to the form
// this session was loaded from.
func (s *Store) Submit(ctx context.Context, api Submitter, submitterName string) (domain.Submission, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return domain.Submission{}, ErrBusy
	}
	s.errors = validate.Validate(s.fields, s.values)
	if !s.errors.OK() {
		errs := maps.Clone(s.errors)
		s.mu.Unlock()
		return domain.Submission{}, &InvalidError{Errors: errs}
	}
	formID := s.formID
	data := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		if v, ok := s.values[f.ID]; ok {
			data[f.ID] = v
		}
	}
	s.submitting = true
	s.submitError = ""
	s.mu.Unlock()

	sub, err := api.Submit(ctx, formID, data, submitterName)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.submitError = err.Error()
		return domain.Submission{}, err
	}
	s.submitted = true
	return sub, nil
}
