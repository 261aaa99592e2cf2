// Package export turns stored forms and submissions into CSV rows.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"formdeck/internal/csvexport"
	"formdeck/internal/domain"
	"formdeck/internal/flatten"
)

const (
	TypeForms       = "forms"
	TypeSubmissions = "submissions"

	FormatOverview = "overview"
	FormatDetailed = "detailed"
	FormatAll      = "all"
	FormatForm     = "form"
)

const (
	dateLayout     = "1/2/2006"
	timeLayout     = "3:04:05 PM"
	dateTimeLayout = "1/2/2006, 3:04:05 PM"
)

var (
	ErrInvalidType = errors.New(`invalid export type; use "forms" or "submissions"`)
	ErrNoData      = errors.New("no data to export")
)

// Source is the read side the exporter needs.
type Source interface {
	ListForms(ctx context.Context) ([]domain.Form, error)
	ListSubmissions(ctx context.Context, formID string) ([]domain.Submission, error)
	ListAllSubmissions(ctx context.Context) ([]domain.Submission, error)
}

type Request struct {
	Type   string
	Format string
	FormID string
}

type Result struct {
	Filename string
	Rows     []*csvexport.Row
}

type Exporter struct {
	Source   Source
	Location *time.Location
	Now      func() time.Time
}

func (x Exporter) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

// Build selects rows for req. Forms default to the detailed layout; submissions
// default to every form unless format is "form" with a form id.
func (x Exporter) Build(ctx context.Context, req Request) (Result, error) {
	loc := x.Location
	if loc == nil {
		loc = time.UTC
	}
	var (
		res  Result
		kind string
	)
	switch req.Type {
	case TypeForms:
		forms, err := x.Source.ListForms(ctx)
		if err != nil {
			return Result{}, err
		}
		detailed := req.Format != FormatOverview
		kind = "forms-overview"
		if detailed {
			kind = "forms-detailed"
		}
		res.Rows = FormRows(forms, detailed, loc)
	case TypeSubmissions:
		var (
			subs []domain.Submission
			err  error
		)
		if req.Format == FormatForm && strings.TrimSpace(req.FormID) != "" {
			kind = "form-submissions-" + req.FormID
			subs, err = x.Source.ListSubmissions(ctx, req.FormID)
		} else {
			kind = "all-submissions"
			subs, err = x.Source.ListAllSubmissions(ctx)
		}
		if err != nil {
			return Result{}, err
		}
		res.Rows = SubmissionRows(subs, loc)
	default:
		return Result{}, ErrInvalidType
	}
	if len(res.Rows) == 0 {
		return Result{}, ErrNoData
	}
	res.Filename = Filename(kind, x.now())
	return res, nil
}

// Filename is <kind>-<YYYY-MM-DD>.csv with the UTC date.
func Filename(kind string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", kind, now.UTC().Format("2006-01-02"))
}

func FormRows(forms []domain.Form, detailed bool, loc *time.Location) []*csvexport.Row {
	rows := make([]*csvexport.Row, 0, len(forms))
	for _, f := range forms {
		status := "Draft"
		if f.IsPublished {
			status = "Published"
		}
		published := ""
		if f.PublishedAt != nil {
			published = localDate(*f.PublishedAt, loc, dateLayout)
		}
		row := csvexport.NewRow(
			"Form ID", f.ID,
			"Title", f.Title,
			"Description", f.Description,
			"Creator", f.OwnerName,
			"Status", status,
			"Active", yesNo(f.IsActive),
			"Created Date", localDate(f.CreatedAt, loc, dateLayout),
			"Updated Date", localDate(f.UpdatedAt, loc, dateLayout),
			"Published Date", published,
			"Total Submissions", strconv.Itoa(f.SubmissionCount),
			"Fields Count", strconv.Itoa(len(f.Fields)),
		)
		if detailed {
			for i, fd := range f.Fields {
				prefix := fmt.Sprintf("Field %d - ", i+1)
				row.Set(prefix+"Label", fd.Label)
				row.Set(prefix+"Type", string(fd.Type))
				row.Set(prefix+"Required", yesNo(fd.Required))
				row.Set(prefix+"Order", strconv.Itoa(fd.Order))
				if fd.Placeholder != "" {
					row.Set(prefix+"Placeholder", fd.Placeholder)
				}
				if len(fd.Options) > 0 {
					row.Set(prefix+"Options", strings.Join(fd.Options, flatten.ListSeparator))
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// SubmissionRows merges the base columns with the flattened payload. Payload keys
// that collide with a base column overwrite it in place.
func SubmissionRows(subs []domain.Submission, loc *time.Location) []*csvexport.Row {
	rows := make([]*csvexport.Row, 0, len(subs))
	for _, s := range subs {
		row := csvexport.NewRow(
			"Submission ID", s.ID,
			"Form Title", s.FormTitle,
			"Form ID", s.FormID,
			"User Name", s.DisplayName(),
			"Submission Date", localDate(s.CreatedAt, loc, dateLayout),
			"Submission Time", localDate(s.CreatedAt, loc, timeLayout),
			"Submission DateTime", localDate(s.CreatedAt, loc, dateTimeLayout),
		)
		for _, c := range flatten.Flatten(s.Payload) {
			row.Set(c.Key, c.Value)
		}
		rows = append(rows, row)
	}
	return rows
}

func localDate(ts string, loc *time.Location, layout string) string {
	t, err := domain.ParseTime(ts)
	if err != nil {
		return ts
	}
	return t.In(loc).Format(layout)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
