package server

import (
	"formdeck/internal/domain"
	"formdeck/internal/fields"
	"formdeck/internal/flatten"
	"formdeck/internal/table"
)

// Request payloads

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type FieldRequest struct {
	ID          string   `json:"id"`
	Type        string   `json:"type" example:"email"`
	Label       string   `json:"label"`
	Required    bool     `json:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
	VisibleWhen string   `json:"visible_when,omitempty" example:"contact == \"yes\""`
}

type FormRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	OwnerName   string         `json:"owner_name,omitempty"`
	Fields      []FieldRequest `json:"fields"`
}

func (r FormRequest) input() domain.FormInput {
	in := domain.FormInput{
		Metadata: domain.Metadata{Title: r.Title, Description: r.Description, OwnerName: r.OwnerName},
		Fields:   make([]fields.Field, 0, len(r.Fields)),
	}
	for i, f := range r.Fields {
		in.Fields = append(in.Fields, fields.Field{
			ID:          f.ID,
			Type:        fields.Type(f.Type),
			Label:       f.Label,
			Required:    f.Required,
			Placeholder: f.Placeholder,
			Options:     f.Options,
			Order:       i,
			VisibleWhen: f.VisibleWhen,
		})
	}
	return in
}

type PublishRequest struct {
	IsPublished bool `json:"is_published"`
}

type ActiveRequest struct {
	IsActive bool `json:"is_active"`
}

type SubmitRequest struct {
	Data     map[string]any `json:"data"`
	UserName string         `json:"user_name,omitempty"`
}

// Responses

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type FieldResponse struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
	Order       int      `json:"order"`
	VisibleWhen string   `json:"visible_when,omitempty"`
}

type FormResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	OwnerName       string          `json:"owner_name,omitempty"`
	Status          string          `json:"status" enum:"published,draft"`
	IsPublished     bool            `json:"is_published"`
	IsActive        bool            `json:"is_active"`
	PublishedAt     string          `json:"published_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	SubmissionCount int             `json:"submission_count"`
	Fields          []FieldResponse `json:"fields"`
}

type CellResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SubmissionResponse struct {
	ID            string         `json:"id"`
	FormID        string         `json:"form_id"`
	FormTitle     string         `json:"form_title,omitempty"`
	SubmitterName string         `json:"submitter_name"`
	Data          any            `json:"data,omitempty"`
	Payload       string         `json:"payload"`
	CreatedAt     string         `json:"created_at"`
	Cells         []CellResponse `json:"cells,omitempty"`
}

type PageResponse[T any] struct {
	Items       []T  `json:"items"`
	CurrentPage int  `json:"current_page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	TotalItems  int  `json:"total_items"`
	PrevPage    *int `json:"prev_page,omitempty"`
	NextPage    *int `json:"next_page,omitempty"`
	Start       int  `json:"start"`
	End         int  `json:"end"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    any    `json:"payload,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func formResponse(f domain.Form) FormResponse {
	resp := FormResponse{
		ID:              f.ID,
		Title:           f.Title,
		Description:     f.Description,
		OwnerName:       f.OwnerName,
		Status:          f.Status(),
		IsPublished:     f.IsPublished,
		IsActive:        f.IsActive,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
		SubmissionCount: f.SubmissionCount,
		Fields:          make([]FieldResponse, 0, len(f.Fields)),
	}
	if f.PublishedAt != nil {
		resp.PublishedAt = *f.PublishedAt
	}
	for _, fd := range f.Fields {
		resp.Fields = append(resp.Fields, FieldResponse{
			ID:          fd.ID,
			Type:        string(fd.Type),
			Label:       fd.Label,
			Required:    fd.Required,
			Placeholder: fd.Placeholder,
			Options:     fd.Options,
			Order:       fd.Order,
			VisibleWhen: fd.VisibleWhen,
		})
	}
	return resp
}

// submissionResponse decodes the payload when it is valid JSON; withCells adds the
// flattened key/value view used by exports.
func submissionResponse(s domain.Submission, withCells bool) SubmissionResponse {
	resp := SubmissionResponse{
		ID:            s.ID,
		FormID:        s.FormID,
		FormTitle:     s.FormTitle,
		SubmitterName: s.DisplayName(),
		Data:          decodeJSON(s.Payload),
		Payload:       s.Payload,
		CreatedAt:     s.CreatedAt,
	}
	if withCells {
		for _, c := range flatten.Flatten(s.Payload) {
			resp.Cells = append(resp.Cells, CellResponse{Key: c.Key, Value: c.Value})
		}
	}
	return resp
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    decodeJSON(evt.Payload),
	}
}

func pageResponse[T, R any](p table.Page[T], conv func(T) R) PageResponse[R] {
	out := PageResponse[R]{
		Items:       make([]R, 0, len(p.Items)),
		CurrentPage: p.CurrentPage,
		PageSize:    p.PageSize,
		TotalPages:  p.TotalPages,
		TotalItems:  p.TotalItems,
		PrevPage:    p.PrevPage,
		NextPage:    p.NextPage,
		Start:       p.Start,
		End:         p.End,
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, conv(item))
	}
	return out
}
