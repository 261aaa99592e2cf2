package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"formdeck/internal/domain"
	"formdeck/internal/engine"
	"formdeck/internal/listing"
	"formdeck/internal/table"
)

type listQuery struct {
	Search   string `query:"search" doc:"Case-insensitive substring search"`
	Sort     string `query:"sort"`
	Order    string `query:"order" enum:"asc,desc"`
	Page     int    `query:"page" default:"1" minimum:"1"`
	PageSize int    `query:"page_size" default:"10" minimum:"1" maximum:"200"`
}

func (q listQuery) table(filters map[string]string) table.Query {
	return table.Query{
		Search:   q.Search,
		Filters:  filters,
		Sort:     q.Sort,
		Order:    q.Order,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerLogin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange admin credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if e.Config == nil || !e.Config.Auth.Enabled() {
			return nil, newAPIError(http.StatusBadRequest, "auth_disabled", "authentication is not enabled", nil)
		}
		token, expires, err := e.Auth().Login(input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)}}, nil
	})
}

type formBody struct {
	Body FormResponse `json:"body"`
}

func registerForms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-forms",
		Method:      http.MethodGet,
		Path:        "/forms",
		Summary:     "List forms",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
		Status string `query:"status" enum:"all,published,draft"`
		Active string `query:"active" enum:"all,active,archived"`
	}) (*struct {
		Body PageResponse[FormResponse] `json:"body"`
	}, error) {
		forms, err := e.ListForms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		page, err := listing.FormPage(forms, input.table(map[string]string{
			listing.FilterStatus: input.Status,
			listing.FilterActive: input.Active,
		}))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body PageResponse[FormResponse] `json:"body"`
		}{Body: pageResponse(page, formResponse)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-form",
		Method:        http.MethodPost,
		Path:          "/forms",
		Summary:       "Create a draft form",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body FormRequest `json:"body"`
	}) (*formBody, error) {
		f, err := e.CreateForm(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/forms/{id}",
		Summary:     "Get a form with its fields",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*formBody, error) {
		f, err := e.GetForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-form",
		Method:      http.MethodPut,
		Path:        "/forms/{id}",
		Summary:     "Replace a form's metadata and fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body FormRequest `json:"body"`
	}) (*formBody, error) {
		f, err := e.UpdateForm(ctx, input.ID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-form",
		Method:        http.MethodDelete,
		Path:          "/forms/{id}",
		Summary:       "Delete a form and its submissions",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteForm(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-form",
		Method:      http.MethodPost,
		Path:        "/forms/{id}/publish",
		Summary:     "Publish or unpublish a form",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body PublishRequest `json:"body"`
	}) (*formBody, error) {
		f, err := e.PublishForm(ctx, input.ID, input.Body.IsPublished)
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-form-active",
		Method:      http.MethodPost,
		Path:        "/forms/{id}/active",
		Summary:     "Archive or restore a form",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ActiveRequest `json:"body"`
	}) (*formBody, error) {
		f, err := e.SetActive(ctx, input.ID, input.Body.IsActive)
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})
}

func registerPublic(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-public-form",
		Method:      http.MethodGet,
		Path:        "/forms/{id}/public",
		Summary:     "Get a form for respondents",
		Description: "Only published, active forms are returned.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusGone},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*formBody, error) {
		f, err := e.PublicForm(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &formBody{Body: formResponse(f)}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Totals and recent submissions",
	}, func(ctx context.Context, input *struct {
		Recent int `query:"recent" default:"5" minimum:"0" maximum:"50"`
	}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		stats, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		subs, err := e.ListAllSubmissions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := DashboardResponse{Stats: stats, Recent: []SubmissionResponse{}}
		for i, s := range subs {
			if i >= input.Recent {
				break
			}
			resp.Recent = append(resp.Recent, submissionResponse(s, false))
		}
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type DashboardResponse struct {
	domain.Stats
	Recent []SubmissionResponse `json:"recent_submissions"`
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.History(ctx, input.EntityID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			resp = append(resp, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: resp}, nil
	})
}
