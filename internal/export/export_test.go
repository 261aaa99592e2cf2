package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdeck/internal/csvexport"
	"formdeck/internal/domain"
	"formdeck/internal/fields"
)

type fakeSource struct {
	forms []domain.Form
	subs  []domain.Submission
}

func (f fakeSource) ListForms(context.Context) ([]domain.Form, error) { return f.forms, nil }

func (f fakeSource) ListSubmissions(_ context.Context, formID string) ([]domain.Submission, error) {
	var out []domain.Submission
	for _, s := range f.subs {
		if s.FormID == formID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fakeSource) ListAllSubmissions(context.Context) ([]domain.Submission, error) {
	return f.subs, nil
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC) }

func sampleSource() fakeSource {
	published := "2024-03-02T10:00:00.000000Z"
	return fakeSource{
		forms: []domain.Form{{
			ID: "f1", Title: "Contact", OwnerName: "Ada", IsPublished: true, IsActive: true,
			PublishedAt: &published, CreatedAt: "2024-03-01T09:15:00.000000Z", UpdatedAt: "2024-03-02T10:00:00.000000Z",
			SubmissionCount: 2,
			Fields: []fields.Field{
				{ID: "name", Type: fields.Text, Label: "Name", Required: true, Placeholder: "Enter text"},
				{ID: "topics", Type: fields.Checkbox, Label: "Topics", Options: []string{"a", "b"}, Order: 1},
			},
		}},
		subs: []domain.Submission{
			{ID: "s2", FormID: "f1", FormTitle: "Contact", SubmitterName: "Grace", Payload: `{"name":"Grace","topics":["a","b"]}`, CreatedAt: "2024-03-05T14:05:09.000000Z"},
			{ID: "s1", FormID: "f1", FormTitle: "Contact", Payload: `not json`, CreatedAt: "2024-03-04T08:00:00.000000Z"},
		},
	}
}

func TestBuildFormsOverview(t *testing.T) {
	x := Exporter{Source: sampleSource(), Now: fixedNow}
	res, err := x.Build(context.Background(), Request{Type: TypeForms, Format: FormatOverview})
	require.NoError(t, err)
	assert.Equal(t, "forms-overview-2024-03-09.csv", res.Filename)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, 11, row.Len())
	status, _ := row.Get("Status")
	assert.Equal(t, "Published", status)
	created, _ := row.Get("Created Date")
	assert.Equal(t, "3/1/2024", created)
	count, _ := row.Get("Total Submissions")
	assert.Equal(t, "2", count)
}

func TestBuildFormsDetailedAddsFieldColumns(t *testing.T) {
	x := Exporter{Source: sampleSource(), Now: fixedNow}
	res, err := x.Build(context.Background(), Request{Type: TypeForms})
	require.NoError(t, err)
	assert.Equal(t, "forms-detailed-2024-03-09.csv", res.Filename)
	keys := res.Rows[0].Keys()
	assert.Equal(t, []string{
		"Field 1 - Label", "Field 1 - Type", "Field 1 - Required", "Field 1 - Order", "Field 1 - Placeholder",
		"Field 2 - Label", "Field 2 - Type", "Field 2 - Required", "Field 2 - Order", "Field 2 - Options",
	}, keys[11:])
	opts, _ := res.Rows[0].Get("Field 2 - Options")
	assert.Equal(t, "a; b", opts)
}

func TestBuildSubmissionsMergesFlattenedPayload(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	x := Exporter{Source: sampleSource(), Location: loc, Now: fixedNow}
	res, err := x.Build(context.Background(), Request{Type: TypeSubmissions, Format: FormatForm, FormID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "form-submissions-f1-2024-03-09.csv", res.Filename)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	assert.Equal(t, []string{
		"Submission ID", "Form Title", "Form ID", "User Name",
		"Submission Date", "Submission Time", "Submission DateTime", "name", "topics",
	}, first.Keys())
	when, _ := first.Get("Submission DateTime")
	assert.Equal(t, "3/5/2024, 9:05:09 AM", when)
	topics, _ := first.Get("topics")
	assert.Equal(t, "a; b", topics)

	second := res.Rows[1]
	user, _ := second.Get("User Name")
	assert.Equal(t, "Anonymous", user)
	raw, _ := second.Get("Raw Data")
	assert.Equal(t, "not json", raw)

	out := csvexport.Encode(res.Rows)
	assert.Contains(t, out, `s1,Contact,f1,Anonymous,3/4/2024,3:00:00 AM,"3/4/2024, 3:00:00 AM",,`)
	assert.NotContains(t, out, "not json")
}

func TestBuildSubmissionsDefaultsToAll(t *testing.T) {
	x := Exporter{Source: sampleSource(), Now: fixedNow}
	res, err := x.Build(context.Background(), Request{Type: TypeSubmissions, Format: FormatForm})
	require.NoError(t, err)
	assert.Equal(t, "all-submissions-2024-03-09.csv", res.Filename)
	assert.Len(t, res.Rows, 2)
}

func TestBuildErrors(t *testing.T) {
	x := Exporter{Source: fakeSource{}, Now: fixedNow}
	_, err := x.Build(context.Background(), Request{Type: "users"})
	assert.ErrorIs(t, err, ErrInvalidType)
	_, err = x.Build(context.Background(), Request{Type: TypeForms})
	assert.ErrorIs(t, err, ErrNoData)
	_, err = x.Build(context.Background(), Request{Type: TypeSubmissions, Format: FormatForm, FormID: "nope"})
	assert.ErrorIs(t, err, ErrNoData)
}
