package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"formdeck/internal/config"
	"formdeck/internal/db"
	"formdeck/internal/engine"
	"formdeck/internal/engine/auth"
	"formdeck/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func contactForm() map[string]any {
	return map[string]any{
		"title":      "Contact",
		"owner_name": "Ada",
		"fields": []map[string]any{
			{"id": "name", "type": "text", "label": "Name", "required": true},
			{"id": "email", "type": "email", "label": "Email", "required": true},
			{"id": "topics", "type": "checkbox", "label": "Topics", "options": []string{"a", "b"}},
		},
	}
}

func createForm(t *testing.T, srv *testServer, headers map[string]string) FormResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/forms", contactForm(), headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create form status %d: %s", res.StatusCode, string(data))
	}
	var f FormResponse
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal form: %v", err)
	}
	return f
}

func publish(t *testing.T, srv *testServer, id string, on bool, headers map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/forms/"+id+"/publish", map[string]any{"is_published": on}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d: %s", res.StatusCode, string(data))
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env
}

func TestFormLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	f := createForm(t, srv, nil)
	if f.Status != "draft" || f.IsPublished || !f.IsActive {
		t.Fatalf("expected active draft, got %+v", f)
	}
	if len(f.Fields) != 3 || f.Fields[2].Order != 2 {
		t.Fatalf("unexpected fields %+v", f.Fields)
	}

	update := contactForm()
	update["title"] = "Contact us"
	update["fields"] = []map[string]any{{"id": "name", "type": "text", "label": "Name"}}
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/forms/"+f.ID, update, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated FormResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Contact us" || len(updated.Fields) != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms", map[string]any{"title": "", "fields": []any{}}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty form, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "invalid_form" {
		t.Fatalf("expected invalid_form, got %q", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/forms/"+f.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
	if env := decodeError(t, data); env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", env.Error.Code)
	}
}

func TestSubmissionValidationAndGating(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	f := createForm(t, srv, nil)
	submitURL := srv.URL + "/v0/forms/" + f.ID + "/submissions"
	valid := map[string]any{"data": map[string]any{"name": "Grace", "email": "grace@example.com", "topics": []string{"b"}}}

	res, data := doJSON(t, client, http.MethodPost, submitURL, valid, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for draft, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "form_not_published" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}

	publish(t, srv, f.ID, true, nil)

	res, data = doJSON(t, client, http.MethodPost, submitURL, map[string]any{"data": map[string]any{"email": "nope"}}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	errs, _ := env.Error.Details["errors"].(map[string]any)
	if errs["name"] != "This field is required" || errs["email"] != "Please enter a valid email address" {
		t.Fatalf("unexpected field errors %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, submitURL, valid, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Payload != `{"name":"Grace","email":"grace@example.com","topics":["b"]}` {
		t.Fatalf("unexpected payload %s", sub.Payload)
	}
	if sub.SubmitterName != "Anonymous" {
		t.Fatalf("expected anonymous submitter, got %q", sub.SubmitterName)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/submissions/"+sub.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get submission status %d: %s", res.StatusCode, string(data))
	}
	var got SubmissionResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.FormTitle != "Contact" || len(got.Cells) != 3 || got.Cells[2].Key != "topics" || got.Cells[2].Value != "b" {
		t.Fatalf("unexpected submission %+v", got)
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/active", map[string]any{"is_active": false}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodPost, submitURL, valid, nil)
	if res.StatusCode != http.StatusGone {
		t.Fatalf("expected 410 for archived form, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID+"/public", nil, nil)
	if res.StatusCode != http.StatusGone {
		t.Fatalf("expected public view to be gone, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_id="+sub.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts []EventResponse
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Type != "submission.created" || evts[0].ActorID != respondentActor {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	for i := 0; i < 3; i++ {
		createForm(t, srv, nil)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/forms?page=2&page_size=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page PageResponse[FormResponse]
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalItems != 3 || page.TotalPages != 2 || len(page.Items) != 1 || page.NextPage != nil {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.PrevPage == nil || *page.PrevPage != 1 {
		t.Fatalf("expected prev page 1, got %v", page.PrevPage)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/forms?status=published", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filter status %d: %s", res.StatusCode, string(data))
	}
	page = PageResponse[FormResponse]{}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalItems != 0 {
		t.Fatalf("expected no published forms, got %d", page.TotalItems)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/dashboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), `"total_forms":3`) || !strings.Contains(string(data), `"recent_submissions":[]`) {
		t.Fatalf("unexpected dashboard %s", string(data))
	}
}

func TestExportCSV(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/export?type=submissions", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without data, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "no_data" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/export?type=bogus", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad type, got %d", res.StatusCode)
	}

	f := createForm(t, srv, nil)
	publish(t, srv, f.ID, true, nil)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/submissions", map[string]any{
		"data":      map[string]any{"name": "Lin, Jr.", "email": "lin@example.com"},
		"user_name": "Lin",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	for _, param := range []string{"formId", "form_id"} {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/export?type=submissions&format=form&"+param+"="+f.ID, nil, nil)
		want := `attachment; filename="form-submissions-` + f.ID + `-2024-03-04.csv"`
		if res.StatusCode != http.StatusOK || res.Header.Get("Content-Disposition") != want {
			t.Fatalf("%s: status %d disposition %q", param, res.StatusCode, res.Header.Get("Content-Disposition"))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/export?type=submissions&format=form&formId="+f.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	want := `attachment; filename="form-submissions-` + f.ID + `-2024-03-04.csv"`
	if cd := res.Header.Get("Content-Disposition"); cd != want {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !bytes.HasPrefix(data, []byte("\ufeff")) {
		t.Fatalf("expected BOM prefix")
	}
	if !strings.Contains(string(data), `"Lin, Jr."`) {
		t.Fatalf("expected quoted comma cell in %s", string(data))
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = "0123456789abcdef"
		cfg.Auth.AdminUser = "admin"
		cfg.Auth.AdminPasswordHash = hash
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{"username": "admin", "password": "bad"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{"username": "admin", "password": "s3cret"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatal(err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}
	f := createForm(t, srv, bearer)
	publish(t, srv, f.ID, true, bearer)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID+"/public", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("public form status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/submissions", map[string]any{
		"data": map[string]any{"name": "Grace", "email": "grace@example.com"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("anonymous submit status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID+"/submissions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("listing submissions should require auth, got %d", res.StatusCode)
	}

	_, key, err := srv.Engine.CreateAPIKey(context.Background(), "ci")
	if err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID+"/submissions", nil, map[string]string{"X-Api-Key": key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key list status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms", nil, map[string]string{"X-Api-Key": "fd_wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", res.StatusCode)
	}
}

func TestOpenAPIServedToConcurrentClients(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	const n = 8
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("get spec: %v", err)
				return
			}
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != http.StatusOK {
				t.Errorf("status %d", res.StatusCode)
			}
			bodies[i] = string(data)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if bodies[i] == "" || bodies[i] != bodies[0] {
			t.Fatalf("response %d differs from the first", i)
		}
	}
	if !strings.Contains(bodies[0], `"openapi"`) {
		t.Fatalf("unexpected document %.80s", bodies[0])
	}
}

func TestIsPublicRoute(t *testing.T) {
	cases := []struct {
		method, route string
		want          bool
	}{
		{http.MethodGet, "/v0/health", true},
		{http.MethodGet, "/v0/forms/{id}/public", true},
		{http.MethodGet, "/v0/forms/abc/public", true},
		{http.MethodPost, "/v0/forms/abc/submissions", true},
		{http.MethodGet, "/v0/forms/abc/submissions", false},
		{http.MethodPost, "/v0/forms//submissions", false},
		{http.MethodGet, "/v0/forms", false},
	}
	for _, tc := range cases {
		if got := isPublicRoute("/v0", tc.method, tc.route); got != tc.want {
			t.Fatalf("%s %s: got %v want %v", tc.method, tc.route, got, tc.want)
		}
	}
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		sigOK    = true
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		if r.Header.Get(SignatureHeader) != Sign("hook-secret", body) {
			sigOK = false
		}
		received = append(received, r.Header.Get("X-Formdeck-Event"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.WebhookConfig{{
			URL:    hook.URL,
			Secret: "hook-secret",
			Events: []string{"form.published"},
		}}
	})
	defer cleanup()

	d := newWebhookDispatcher(srv.Engine, time.Hour)
	ctx := context.Background()
	d.dispatchAll(ctx) // pins the cursor before any event exists

	f := createForm(t, srv, nil)
	publish(t, srv, f.ID, true, nil)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "form.published" {
		t.Fatalf("unexpected deliveries %v", received)
	}
	if !sigOK {
		t.Fatalf("signature mismatch")
	}
}
