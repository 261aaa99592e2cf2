package formdecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal formdeck HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Field is one input of a form definition.
type Field struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    bool     `json:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
	Order       int      `json:"order,omitempty"`
	VisibleWhen string   `json:"visible_when,omitempty"`
}

// FormInput is the body of create and update calls.
type FormInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	OwnerName   string  `json:"owner_name,omitempty"`
	Fields      []Field `json:"fields"`
}

// Form represents the API form model.
type Form struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	OwnerName       string  `json:"owner_name,omitempty"`
	Status          string  `json:"status"`
	IsPublished     bool    `json:"is_published"`
	IsActive        bool    `json:"is_active"`
	PublishedAt     string  `json:"published_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	SubmissionCount int     `json:"submission_count"`
	Fields          []Field `json:"fields"`
}

type Cell struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Submission represents one stored response.
type Submission struct {
	ID            string `json:"id"`
	FormID        string `json:"form_id"`
	FormTitle     string `json:"form_title,omitempty"`
	SubmitterName string `json:"submitter_name"`
	Data          any    `json:"data,omitempty"`
	Payload       string `json:"payload"`
	CreatedAt     string `json:"created_at"`
	Cells         []Cell `json:"cells,omitempty"`
}

// Page wraps list responses.
type Page[T any] struct {
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

// ListOptions narrows list calls. Zero values are omitted.
type ListOptions struct {
	Search   string
	Sort     string
	Order    string
	Page     int
	PageSize int
	Filters  map[string]string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Order != "" {
		v.Set("order", o.Order)
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	for k, val := range o.Filters {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

type Dashboard struct {
	TotalForms        int          `json:"total_forms"`
	PublishedForms    int          `json:"published_forms"`
	DraftForms        int          `json:"draft_forms"`
	ActiveForms       int          `json:"active_forms"`
	TotalSubmissions  int          `json:"total_submissions"`
	RecentSubmissions []Submission `json:"recent_submissions"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    any    `json:"payload"`
}

// APIError wraps non-2xx responses. Code, Message and Details are filled from
// the error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FieldErrors returns per-field messages of a failed submission.
func (e *APIError) FieldErrors() map[string]string {
	raw, _ := e.Details["errors"].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

// Login exchanges admin credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, c.apiPath("auth/login"), body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) CreateForm(ctx context.Context, in FormInput) (Form, error) {
	var resp Form
	err := c.do(ctx, http.MethodPost, c.apiPath("forms"), in, &resp)
	return resp, err
}

// UpdateForm replaces metadata and fields of an existing form.
func (c *Client) UpdateForm(ctx context.Context, id string, in FormInput) (Form, error) {
	var resp Form
	err := c.do(ctx, http.MethodPut, c.apiPath("forms/"+url.PathEscape(id)), in, &resp)
	return resp, err
}

func (c *Client) PublishForm(ctx context.Context, id string, published bool) (Form, error) {
	var resp Form
	body := map[string]bool{"is_published": published}
	err := c.do(ctx, http.MethodPost, c.apiPath("forms/"+url.PathEscape(id)+"/publish"), body, &resp)
	return resp, err
}

// SetActive archives (false) or restores (true) a form.
func (c *Client) SetActive(ctx context.Context, id string, active bool) (Form, error) {
	var resp Form
	body := map[string]bool{"is_active": active}
	err := c.do(ctx, http.MethodPost, c.apiPath("forms/"+url.PathEscape(id)+"/active"), body, &resp)
	return resp, err
}

func (c *Client) GetForm(ctx context.Context, id string) (Form, error) {
	var resp Form
	err := c.do(ctx, http.MethodGet, c.apiPath("forms/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// PublicForm fetches the respondent view; it fails for drafts and archived forms.
func (c *Client) PublicForm(ctx context.Context, id string) (Form, error) {
	var resp Form
	err := c.do(ctx, http.MethodGet, c.apiPath("forms/"+url.PathEscape(id)+"/public"), nil, &resp)
	return resp, err
}

func (c *Client) ListForms(ctx context.Context, opts ListOptions) (Page[Form], error) {
	var resp Page[Form]
	err := c.do(ctx, http.MethodGet, withQuery(c.apiPath("forms"), opts.values()), nil, &resp)
	return resp, err
}

func (c *Client) DeleteForm(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apiPath("forms/"+url.PathEscape(id)), nil, nil)
}

// Submit posts answers keyed by field id.
func (c *Client) Submit(ctx context.Context, formID string, data map[string]any, submitterName string) (Submission, error) {
	body := map[string]any{"data": data}
	if submitterName != "" {
		body["user_name"] = submitterName
	}
	var resp Submission
	err := c.do(ctx, http.MethodPost, c.apiPath("forms/"+url.PathEscape(formID)+"/submissions"), body, &resp)
	return resp, err
}

// ListSubmissions lists one form's submissions, or every submission when formID is empty.
func (c *Client) ListSubmissions(ctx context.Context, formID string, opts ListOptions) (Page[Submission], error) {
	endpoint := c.apiPath("submissions")
	if formID != "" {
		endpoint = c.apiPath("forms/" + url.PathEscape(formID) + "/submissions")
	}
	var resp Page[Submission]
	err := c.do(ctx, http.MethodGet, withQuery(endpoint, opts.values()), nil, &resp)
	return resp, err
}

func (c *Client) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodGet, c.apiPath("submissions/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

func (c *Client) DeleteSubmission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apiPath("submissions/"+url.PathEscape(id)), nil, nil)
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, c.apiPath("dashboard"), nil, &resp)
	return resp, err
}

// Events returns recent events, optionally for one entity.
func (c *Client) Events(ctx context.Context, entityID string, limit int) ([]Event, error) {
	v := url.Values{}
	if entityID != "" {
		v.Set("entity_id", entityID)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, withQuery(c.apiPath("events"), v), nil, &resp)
	return resp, err
}

// Export downloads a CSV and returns the server-suggested filename with the body.
func (c *Client) Export(ctx context.Context, exportType, format, formID string) (string, []byte, error) {
	v := url.Values{}
	v.Set("type", exportType)
	if format != "" {
		v.Set("format", format)
	}
	if formID != "" {
		v.Set("formId", formID)
	}
	res, err := c.send(ctx, http.MethodGet, withQuery(c.apiPath("export"), v), nil)
	if err != nil {
		return "", nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", nil, err
	}
	filename := ""
	if _, params, err := mime.ParseMediaType(res.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return filename, data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, b)
	}
	return resp, nil
}

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
