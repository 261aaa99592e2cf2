package domain

import (
	"strings"
	"time"

	"formdeck/internal/fields"
)

// TimestampLayout is fixed-width so stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimestampLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime accepts TimestampLayout and RFC3339 values.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

const DefaultTitle = "Untitled Form"

type Metadata struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	OwnerName   string `json:"owner_name,omitempty" yaml:"owner_name,omitempty"`
}

type Form struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	OwnerName       string         `json:"owner_name,omitempty"`
	Fields          []fields.Field `json:"fields"`
	IsPublished     bool           `json:"is_published"`
	IsActive        bool           `json:"is_active"`
	PublishedAt     *string        `json:"published_at,omitempty" format:"date-time"`
	CreatedAt       string         `json:"created_at" format:"date-time"`
	UpdatedAt       string         `json:"updated_at" format:"date-time"`
	SubmissionCount int            `json:"submission_count"`
}

func (f Form) Metadata() Metadata {
	return Metadata{Title: f.Title, Description: f.Description, OwnerName: f.OwnerName}
}

// Status is "published" or "draft".
func (f Form) Status() string {
	if f.IsPublished {
		return "published"
	}
	return "draft"
}

// AcceptsSubmissions reports whether respondents may submit.
func (f Form) AcceptsSubmissions() bool {
	return f.IsPublished && f.IsActive
}

// FormInput is the client-supplied definition used to create or replace a form.
type FormInput struct {
	Metadata `yaml:",inline"`
	Fields   []fields.Field `json:"fields" yaml:"fields"`
}

type Submission struct {
	ID            string `json:"id"`
	FormID        string `json:"form_id"`
	FormTitle     string `json:"form_title,omitempty"`
	SubmitterName string `json:"submitter_name,omitempty"`
	Payload       string `json:"payload"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// DisplayName falls back to "Anonymous" when no submitter was given.
func (s Submission) DisplayName() string {
	if strings.TrimSpace(s.SubmitterName) == "" {
		return "Anonymous"
	}
	return s.SubmitterName
}

type Stats struct {
	TotalForms       int `json:"total_forms" db:"total_forms"`
	PublishedForms   int `json:"published_forms" db:"published_forms"`
	DraftForms       int `json:"draft_forms" db:"draft_forms"`
	ActiveForms      int `json:"active_forms" db:"active_forms"`
	TotalSubmissions int `json:"total_submissions" db:"total_submissions"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
