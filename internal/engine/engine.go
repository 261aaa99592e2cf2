package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"formdeck/internal/config"
	"formdeck/internal/domain"
	"formdeck/internal/events"
	"formdeck/internal/fields"
	"formdeck/internal/repo"
	"formdeck/internal/validate"
)

var (
	ErrNotPublished = errors.New("form is not published")
	ErrInactive     = errors.New("form is no longer accepting responses")
	ErrInvalidForm  = errors.New("invalid form definition")
)

// ValidationError carries the per-field messages of a rejected submission.
type ValidationError struct {
	Errors validate.Errors
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("submission has %d invalid field(s): %s", len(ids), strings.Join(ids, ", "))
}

type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sqlx.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// checkDefinition normalizes in and rejects definitions a respondent could not fill.
func checkDefinition(in domain.FormInput) (domain.FormInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, fmt.Errorf("%w: title is required", ErrInvalidForm)
	}
	if len(in.Fields) == 0 {
		return in, fmt.Errorf("%w: at least one field is required", ErrInvalidForm)
	}
	seen := make(map[string]struct{}, len(in.Fields))
	out := make([]fields.Field, 0, len(in.Fields))
	for i, f := range in.Fields {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			return in, fmt.Errorf("%w: field %d has no id", ErrInvalidForm, i+1)
		}
		if _, dup := seen[f.ID]; dup {
			return in, fmt.Errorf("%w: duplicate field id %s", ErrInvalidForm, f.ID)
		}
		seen[f.ID] = struct{}{}
		if !f.Type.Known() {
			return in, fmt.Errorf("%w: field %s has unknown type %q", ErrInvalidForm, f.ID, f.Type)
		}
		if strings.TrimSpace(f.Label) == "" {
			f.Label = fields.DefaultLabel(f.Type)
		}
		if !f.Type.HasOptions() {
			f.Options = nil
		} else if len(f.Options) == 0 {
			return in, fmt.Errorf("%w: field %s needs at least one option", ErrInvalidForm, f.ID)
		}
		f.Order = i
		out = append(out, f)
	}
	for _, f := range out {
		if strings.TrimSpace(f.VisibleWhen) == "" {
			continue
		}
		if err := validate.CheckExpression(f.VisibleWhen, out); err != nil {
			return in, fmt.Errorf("%w: field %s visibility rule: %v", ErrInvalidForm, f.ID, err)
		}
	}
	in.Fields = out
	return in, nil
}

// CreateForm stores a new draft form.
func (e Engine) CreateForm(ctx context.Context, in domain.FormInput) (domain.Form, error) {
	in, err := checkDefinition(in)
	if err != nil {
		return domain.Form{}, err
	}
	now := domain.FormatTime(e.now())
	f := domain.Form{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		OwnerName:   strings.TrimSpace(in.OwnerName),
		Fields:      in.Fields,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Form{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertFormTx(ctx, tx, f); err != nil {
		return domain.Form{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.FormCreated, "form", f.ID, events.EventPayload{"title": f.Title, "fields": len(f.Fields)}); err != nil {
		return domain.Form{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Form{}, err
	}
	return f, nil
}

// UpdateForm replaces the metadata and the whole field list of a form.
func (e Engine) UpdateForm(ctx context.Context, id string, in domain.FormInput) (domain.Form, error) {
	in, err := checkDefinition(in)
	if err != nil {
		return domain.Form{}, err
	}
	in.OwnerName = strings.TrimSpace(in.OwnerName)
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Form{}, err
	}
	defer tx.Rollback()

	now := domain.FormatTime(e.now())
	if err := e.Repo.UpdateFormMetaTx(ctx, tx, id, in.Metadata, now); err != nil {
		return domain.Form{}, err
	}
	if err := e.Repo.ReplaceFieldsTx(ctx, tx, id, in.Fields); err != nil {
		return domain.Form{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.FormUpdated, "form", id, events.EventPayload{"title": in.Title, "fields": len(in.Fields)}); err != nil {
		return domain.Form{}, err
	}
	f, err := e.Repo.GetFormTx(ctx, tx, id)
	if err != nil {
		return domain.Form{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Form{}, err
	}
	return f, nil
}

// PublishForm toggles publication. Publishing stamps PublishedAt; unpublishing clears it.
func (e Engine) PublishForm(ctx context.Context, id string, published bool) (domain.Form, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Form{}, err
	}
	defer tx.Rollback()

	now := domain.FormatTime(e.now())
	var publishedAt *string
	evtType := events.FormUnpublished
	if published {
		publishedAt = &now
		evtType = events.FormPublished
	}
	if err := e.Repo.SetPublishedTx(ctx, tx, id, published, publishedAt, now); err != nil {
		return domain.Form{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, evtType, "form", id, nil); err != nil {
		return domain.Form{}, err
	}
	f, err := e.Repo.GetFormTx(ctx, tx, id)
	if err != nil {
		return domain.Form{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Form{}, err
	}
	return f, nil
}

// SetActive archives (false) or restores (true) a form.
func (e Engine) SetActive(ctx context.Context, id string, active bool) (domain.Form, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Form{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetActiveTx(ctx, tx, id, active, domain.FormatTime(e.now())); err != nil {
		return domain.Form{}, err
	}
	evtType := events.FormArchived
	if active {
		evtType = events.FormRestored
	}
	if err := e.eventWriter().Append(ctx, tx, evtType, "form", id, nil); err != nil {
		return domain.Form{}, err
	}
	f, err := e.Repo.GetFormTx(ctx, tx, id)
	if err != nil {
		return domain.Form{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Form{}, err
	}
	return f, nil
}

// DeleteForm removes a form together with its fields and submissions.
func (e Engine) DeleteForm(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	f, err := e.Repo.GetFormTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteFormTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.FormDeleted, "form", id, events.EventPayload{"title": f.Title, "submissions": f.SubmissionCount}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetForm(ctx context.Context, id string) (domain.Form, error) {
	return e.Repo.GetForm(ctx, id)
}

func (e Engine) ListForms(ctx context.Context) ([]domain.Form, error) {
	return e.Repo.ListForms(ctx)
}

// PublicForm returns a form only while it accepts responses.
func (e Engine) PublicForm(ctx context.Context, id string) (domain.Form, error) {
	f, err := e.Repo.GetForm(ctx, id)
	if err != nil {
		return domain.Form{}, err
	}
	if err := acceptCheck(f); err != nil {
		return domain.Form{}, err
	}
	return f, nil
}

func acceptCheck(f domain.Form) error {
	if !f.IsPublished {
		return ErrNotPublished
	}
	if !f.IsActive {
		return ErrInactive
	}
	return nil
}

// Submit validates data against the form's fields and stores it. Keys that are not
// field ids are dropped.
func (e Engine) Submit(ctx context.Context, formID string, data map[string]any, submitterName string) (domain.Submission, error) {
	f, err := e.Repo.GetForm(ctx, formID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := acceptCheck(f); err != nil {
		return domain.Submission{}, err
	}
	values := make(map[string]any, len(f.Fields))
	for _, fd := range f.Fields {
		if v, ok := data[fd.ID]; ok {
			values[fd.ID] = fields.Normalize(fd.Type, v)
		}
	}
	if errs := validate.Validate(f.Fields, values); !errs.OK() {
		return domain.Submission{}, &ValidationError{Errors: errs}
	}
	payload, err := encodePayload(f.Fields, values)
	if err != nil {
		return domain.Submission{}, err
	}
	s := domain.Submission{
		ID:            uuid.NewString(),
		FormID:        f.ID,
		FormTitle:     f.Title,
		SubmitterName: strings.TrimSpace(submitterName),
		Payload:       payload,
		CreatedAt:     domain.FormatTime(e.now()),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSubmissionTx(ctx, tx, s); err != nil {
		return domain.Submission{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.SubmissionCreated, "submission", s.ID, events.EventPayload{
		"form_id":   s.FormID,
		"submitter": s.DisplayName(),
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// encodePayload writes values as a JSON object keyed by field id in field order.
func encodePayload(fs []fields.Field, values map[string]any) (string, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	n := 0
	for _, f := range fs {
		v, ok := values[f.ID]
		if !ok {
			continue
		}
		key, err := json.Marshal(f.ID)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", f.ID, err)
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
		n++
	}
	b.WriteByte('}')
	return b.String(), nil
}

func (e Engine) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return e.Repo.GetSubmission(ctx, id)
}

// ListSubmissions returns a form's submissions, newest first.
func (e Engine) ListSubmissions(ctx context.Context, formID string) ([]domain.Submission, error) {
	if _, err := e.Repo.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return e.Repo.ListSubmissions(ctx, formID)
}

func (e Engine) ListAllSubmissions(ctx context.Context) ([]domain.Submission, error) {
	return e.Repo.ListSubmissions(ctx, "")
}

func (e Engine) DeleteSubmission(ctx context.Context, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteSubmissionTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.SubmissionDeleted, "submission", id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) Stats(ctx context.Context) (domain.Stats, error) {
	return e.Repo.Stats(ctx)
}

// History lists recent audit events, optionally for one form or submission.
func (e Engine) History(ctx context.Context, entityID string, limit int) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, entityID, limit)
}
