package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"formdeck/internal/domain"
	"formdeck/internal/fields"
)

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

type formRow struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Description     sql.NullString `db:"description"`
	OwnerName       sql.NullString `db:"owner_name"`
	IsPublished     bool           `db:"is_published"`
	IsActive        bool           `db:"is_active"`
	PublishedAt     sql.NullString `db:"published_at"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
	SubmissionCount int            `db:"submission_count"`
}

func (r formRow) toDomain() domain.Form {
	f := domain.Form{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description.String,
		OwnerName:       r.OwnerName.String,
		IsPublished:     r.IsPublished,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		SubmissionCount: r.SubmissionCount,
		Fields:          []fields.Field{},
	}
	if r.PublishedAt.Valid {
		ts := r.PublishedAt.String
		f.PublishedAt = &ts
	}
	return f
}

type fieldRow struct {
	FormID      string         `db:"form_id"`
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	Label       string         `db:"label"`
	Required    bool           `db:"required"`
	Placeholder sql.NullString `db:"placeholder"`
	OptionsJSON sql.NullString `db:"options_json"`
	VisibleWhen sql.NullString `db:"visible_when"`
	Position    int            `db:"position"`
}

func (r fieldRow) toDomain() fields.Field {
	f := fields.Field{
		ID:          r.ID,
		Type:        fields.Type(r.Type),
		Label:       r.Label,
		Required:    r.Required,
		Placeholder: r.Placeholder.String,
		VisibleWhen: r.VisibleWhen.String,
		Order:       r.Position,
	}
	if r.OptionsJSON.Valid && r.OptionsJSON.String != "" {
		_ = json.Unmarshal([]byte(r.OptionsJSON.String), &f.Options)
	}
	return f
}

const formColumns = `f.id, f.title, f.description, f.owner_name, f.is_published, f.is_active, f.published_at, f.created_at, f.updated_at,
	(SELECT COUNT(*) FROM submissions s WHERE s.form_id = f.id) AS submission_count`

// InsertFormTx stores the form row and its fields.
func (r Repo) InsertFormTx(ctx context.Context, tx *sqlx.Tx, f domain.Form) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO forms(id,title,description,owner_name,is_published,is_active,published_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`),
		f.ID, f.Title, nullable(f.Description), nullable(f.OwnerName), f.IsPublished, f.IsActive, nullablePtr(f.PublishedAt), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return r.ReplaceFieldsTx(ctx, tx, f.ID, f.Fields)
}

// UpdateFormMetaTx rewrites title, description and owner.
func (r Repo) UpdateFormMetaTx(ctx context.Context, tx *sqlx.Tx, id string, meta domain.Metadata, updatedAt string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE forms SET title=?, description=?, owner_name=?, updated_at=? WHERE id=?`),
		meta.Title, nullable(meta.Description), nullable(meta.OwnerName), updatedAt, id)
	return affectedOrNotFound(res, err)
}

// ReplaceFieldsTx drops every field of the form and inserts fs with position = index.
func (r Repo) ReplaceFieldsTx(ctx context.Context, tx *sqlx.Tx, formID string, fs []fields.Field) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM form_fields WHERE form_id=?`), formID); err != nil {
		return fmt.Errorf("delete fields: %w", err)
	}
	insert := tx.Rebind(`INSERT INTO form_fields(form_id,id,type,label,required,placeholder,options_json,visible_when,position) VALUES (?,?,?,?,?,?,?,?,?)`)
	for i, f := range fs {
		var opts any
		if len(f.Options) > 0 {
			b, err := json.Marshal(f.Options)
			if err != nil {
				return err
			}
			opts = string(b)
		}
		if _, err := tx.ExecContext(ctx, insert, formID, f.ID, string(f.Type), f.Label, f.Required,
			nullable(f.Placeholder), opts, nullable(f.VisibleWhen), i); err != nil {
			return fmt.Errorf("insert field %s: %w", f.ID, err)
		}
	}
	return nil
}

// SetPublishedTx toggles publication; publishedAt is cleared when unpublishing.
func (r Repo) SetPublishedTx(ctx context.Context, tx *sqlx.Tx, id string, published bool, publishedAt *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE forms SET is_published=?, published_at=?, updated_at=? WHERE id=?`),
		published, nullablePtr(publishedAt), updatedAt, id)
	return affectedOrNotFound(res, err)
}

func (r Repo) SetActiveTx(ctx context.Context, tx *sqlx.Tx, id string, active bool, updatedAt string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE forms SET is_active=?, updated_at=? WHERE id=?`), active, updatedAt, id)
	return affectedOrNotFound(res, err)
}

// DeleteFormTx removes the form; fields and submissions follow by cascade.
func (r Repo) DeleteFormTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM forms WHERE id=?`), id)
	return affectedOrNotFound(res, err)
}

func (r Repo) GetForm(ctx context.Context, id string) (domain.Form, error) {
	return r.getForm(ctx, r.DB, id)
}

func (r Repo) GetFormTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.Form, error) {
	return r.getForm(ctx, tx, id)
}

func (r Repo) getForm(ctx context.Context, q sqlx.ExtContext, id string) (domain.Form, error) {
	var row formRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+formColumns+` FROM forms f WHERE f.id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Form{}, ErrNotFound
	}
	if err != nil {
		return domain.Form{}, err
	}
	f := row.toDomain()
	var frows []fieldRow
	if err := sqlx.SelectContext(ctx, q, &frows, q.Rebind(`SELECT form_id,id,type,label,required,placeholder,options_json,visible_when,position FROM form_fields WHERE form_id=? ORDER BY position`), id); err != nil {
		return domain.Form{}, err
	}
	for _, fr := range frows {
		f.Fields = append(f.Fields, fr.toDomain())
	}
	return f, nil
}

// ListForms returns every form with fields and submission counts, newest first.
func (r Repo) ListForms(ctx context.Context) ([]domain.Form, error) {
	var rows []formRow
	if err := r.DB.SelectContext(ctx, &rows, `SELECT `+formColumns+` FROM forms f ORDER BY f.created_at DESC, f.id DESC`); err != nil {
		return nil, err
	}
	var frows []fieldRow
	if err := r.DB.SelectContext(ctx, &frows, `SELECT form_id,id,type,label,required,placeholder,options_json,visible_when,position FROM form_fields ORDER BY form_id, position`); err != nil {
		return nil, err
	}
	byForm := make(map[string][]fields.Field, len(rows))
	for _, fr := range frows {
		byForm[fr.FormID] = append(byForm[fr.FormID], fr.toDomain())
	}
	res := make([]domain.Form, 0, len(rows))
	for _, row := range rows {
		f := row.toDomain()
		if fs, ok := byForm[f.ID]; ok {
			f.Fields = fs
		}
		res = append(res, f)
	}
	return res, nil
}

type submissionRow struct {
	ID            string         `db:"id"`
	FormID        string         `db:"form_id"`
	FormTitle     sql.NullString `db:"form_title"`
	SubmitterName sql.NullString `db:"submitter_name"`
	Payload       string         `db:"payload"`
	CreatedAt     string         `db:"created_at"`
}

func (r submissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:            r.ID,
		FormID:        r.FormID,
		FormTitle:     r.FormTitle.String,
		SubmitterName: r.SubmitterName.String,
		Payload:       r.Payload,
		CreatedAt:     r.CreatedAt,
	}
}

const submissionSelect = `SELECT s.id, s.form_id, f.title AS form_title, s.submitter_name, s.payload, s.created_at
	FROM submissions s LEFT JOIN forms f ON f.id = s.form_id`

func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sqlx.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO submissions(id,form_id,submitter_name,payload,created_at) VALUES (?,?,?,?,?)`),
		s.ID, s.FormID, nullable(s.SubmitterName), s.Payload, s.CreatedAt)
	return err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	var row submissionRow
	err := r.DB.GetContext(ctx, &row, r.DB.Rebind(submissionSelect+` WHERE s.id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, ErrNotFound
	}
	if err != nil {
		return domain.Submission{}, err
	}
	return row.toDomain(), nil
}

// ListSubmissions returns submissions newest first, optionally for a single form.
func (r Repo) ListSubmissions(ctx context.Context, formID string) ([]domain.Submission, error) {
	query := submissionSelect
	var args []any
	if formID != "" {
		query += ` WHERE s.form_id=?`
		args = append(args, formID)
	}
	query += ` ORDER BY s.created_at DESC, s.id DESC`
	var rows []submissionRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	res := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

func (r Repo) DeleteSubmissionTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM submissions WHERE id=?`), id)
	return affectedOrNotFound(res, err)
}

// Stats aggregates dashboard counters.
func (r Repo) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := r.DB.GetContext(ctx, &s, `SELECT
		COUNT(*) AS total_forms,
		COALESCE(SUM(CASE WHEN is_published THEN 1 ELSE 0 END), 0) AS published_forms,
		COALESCE(SUM(CASE WHEN is_published THEN 0 ELSE 1 END), 0) AS draft_forms,
		COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_forms,
		(SELECT COUNT(*) FROM submissions) AS total_submissions
		FROM forms`)
	return s, err
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
