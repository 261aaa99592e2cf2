package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"formdeck/internal/domain"
	"formdeck/internal/engine"
	"formdeck/internal/events"
	"formdeck/internal/listing"
)

// respondentActor tags unauthenticated submissions in the audit log.
const respondentActor = "respondent"

type submissionPage struct {
	Body PageResponse[SubmissionResponse] `json:"body"`
}

func listSubmissionsRow(s domain.Submission) SubmissionResponse {
	return submissionResponse(s, false)
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-form-submissions",
		Method:      http.MethodGet,
		Path:        "/forms/{id}/submissions",
		Summary:     "List a form's submissions",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		listQuery
	}) (*submissionPage, error) {
		subs, err := e.ListSubmissions(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		page, err := listing.SubmissionPage(subs, input.table(nil))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &submissionPage{Body: pageResponse(page, listSubmissionsRow)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-form",
		Method:        http.MethodPost,
		Path:          "/forms/{id}/submissions",
		Summary:       "Submit answers to a published form",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusGone,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body SubmitRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if _, ok := principalFromContext(ctx); !ok {
			ctx = events.WithActor(ctx, respondentActor)
		}
		sub, err := e.Submit(ctx, input.ID, input.Body.Data, input.Body.UserName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(sub, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List submissions across forms",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
		FormID string `query:"form_id"`
	}) (*submissionPage, error) {
		subs, err := e.ListAllSubmissions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		page, err := listing.SubmissionPage(subs, input.table(map[string]string{"form_id": input.FormID}))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &submissionPage{Body: pageResponse(page, listSubmissionsRow)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get a submission with its flattened cells",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		sub, err := e.GetSubmission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(sub, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-submission",
		Method:        http.MethodDelete,
		Path:          "/submissions/{id}",
		Summary:       "Delete a submission",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteSubmission(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
