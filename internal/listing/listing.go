// Package listing declares the searchable, sortable list views over forms and submissions.
package listing

import (
	"cmp"
	"strings"

	"formdeck/internal/domain"
	"formdeck/internal/table"
)

const (
	FilterStatus = "status"
	FilterActive = "active"
)

// Forms searches title, description and owner; filters by status (published|draft)
// and active (active|archived); sorts by title, owner, submissions or created_at.
func Forms() table.Config[domain.Form] {
	return table.Config[domain.Form]{
		Search: []func(domain.Form) string{
			func(f domain.Form) string { return f.Title },
			func(f domain.Form) string { return f.Description },
			func(f domain.Form) string { return f.OwnerName },
		},
		Filters: map[string]func(domain.Form, string) bool{
			FilterStatus: func(f domain.Form, v string) bool { return f.Status() == strings.ToLower(v) },
			FilterActive: func(f domain.Form, v string) bool {
				switch strings.ToLower(v) {
				case "active", "true", "yes":
					return f.IsActive
				case "archived", "inactive", "false", "no":
					return !f.IsActive
				}
				return true
			},
		},
		Sorts: map[string]func(a, b domain.Form) int{
			"title":       func(a, b domain.Form) int { return foldCompare(a.Title, b.Title) },
			"owner":       func(a, b domain.Form) int { return foldCompare(a.OwnerName, b.OwnerName) },
			"submissions": func(a, b domain.Form) int { return cmp.Compare(a.SubmissionCount, b.SubmissionCount) },
			"created_at":  func(a, b domain.Form) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) },
			"updated_at":  func(a, b domain.Form) int { return cmp.Compare(a.UpdatedAt, b.UpdatedAt) },
		},
		DefaultSort:      "created_at",
		DefaultDirection: table.Desc,
	}
}

// Submissions searches form title, submitter and id; filters by form id; sorts by
// form_title, submitter or created_at.
func Submissions() table.Config[domain.Submission] {
	return table.Config[domain.Submission]{
		Search: []func(domain.Submission) string{
			func(s domain.Submission) string { return s.FormTitle },
			func(s domain.Submission) string { return s.DisplayName() },
			func(s domain.Submission) string { return s.ID },
		},
		Filters: map[string]func(domain.Submission, string) bool{
			"form_id": func(s domain.Submission, v string) bool { return s.FormID == v },
		},
		Sorts: map[string]func(a, b domain.Submission) int{
			"form_title": func(a, b domain.Submission) int { return foldCompare(a.FormTitle, b.FormTitle) },
			"submitter":  func(a, b domain.Submission) int { return foldCompare(a.DisplayName(), b.DisplayName()) },
			"created_at": func(a, b domain.Submission) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) },
		},
		DefaultSort:      "created_at",
		DefaultDirection: table.Desc,
	}
}

func foldCompare(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// FormPage applies q to forms.
func FormPage(forms []domain.Form, q table.Query) (table.Page[domain.Form], error) {
	c := table.New(Forms())
	if err := c.ApplyQuery(q); err != nil {
		return table.Page[domain.Form]{}, err
	}
	return c.Apply(forms), nil
}

// SubmissionPage applies q to subs.
func SubmissionPage(subs []domain.Submission, q table.Query) (table.Page[domain.Submission], error) {
	c := table.New(Submissions())
	if err := c.ApplyQuery(q); err != nil {
		return table.Page[domain.Submission]{}, err
	}
	return c.Apply(subs), nil
}
