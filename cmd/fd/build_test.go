package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"formdeck/internal/app"
	"formdeck/internal/config"
	"formdeck/internal/domain"
	"formdeck/internal/engine"
	"formdeck/internal/events"
	"formdeck/internal/fields"
	"formdeck/internal/session"
)

func newTestEngine(t *testing.T) (engine.Engine, context.Context) {
	t.Helper()
	e, err := app.Open(t.TempDir(), config.Default())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { e.DB.Close() })
	return e, events.WithActor(context.Background(), "tester")
}

func sequentialIDs() session.Option {
	n := 0
	return session.WithIDGenerator(func() string {
		n++
		return "f" + string(rune('0'+n))
	})
}

func TestBuilderSavesAndPublishes(t *testing.T) {
	e, ctx := newTestEngine(t)
	store := session.New(sequentialIDs())
	script := strings.Join([]string{
		"title Feedback",
		"owner Ada",
		"add text",
		"add radio",
		"label 1 Name",
		"required f1 on",
		"options 2 Good, Bad",
		"move f2 f1",
		"bogus",
		"publish",
		"quit",
	}, "\n")
	var out bytes.Buffer
	if err := runBuilder(ctx, strings.NewReader(script), &out, store, e); err != nil {
		t.Fatalf("builder: %v", err)
	}
	if !strings.Contains(out.String(), `error: unknown command "bogus"`) {
		t.Fatalf("expected unknown command error in %q", out.String())
	}
	id := store.FormID()
	if id == "" {
		t.Fatalf("form was not saved: %s", out.String())
	}
	f, err := e.GetForm(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsPublished || f.Title != "Feedback" || f.OwnerName != "Ada" {
		t.Fatalf("unexpected form %+v", f)
	}
	if len(f.Fields) != 2 || f.Fields[0].ID != "f2" || f.Fields[1].Label != "Name" || !f.Fields[1].Required {
		t.Fatalf("unexpected fields %+v", f.Fields)
	}
	if strings.Join(f.Fields[0].Options, "|") != "Good|Bad" {
		t.Fatalf("unexpected options %v", f.Fields[0].Options)
	}
}

func TestBuilderRejectsIncompleteDraft(t *testing.T) {
	e, ctx := newTestEngine(t)
	store := session.New()
	var out bytes.Buffer
	if err := runBuilder(ctx, strings.NewReader("title Only title\nsave\n"), &out, store, e); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "error: "+session.ErrOwnerRequired.Error()) {
		t.Fatalf("expected owner error, got %q", out.String())
	}
	if store.FormID() != "" {
		t.Fatalf("draft should not be saved")
	}
}

func TestBuilderFromDefinitionKeepsRules(t *testing.T) {
	e, ctx := newTestEngine(t)
	store := session.New()
	err := store.LoadInput(domain.FormInput{
		Metadata: domain.Metadata{Title: "Poll", OwnerName: "Ada"},
		Fields: []fields.Field{
			{ID: "q1", Type: fields.Radio, Label: "Coming?", Options: []string{"Yes", "No"}},
			{ID: "q2", Type: fields.Text, Label: "Why", VisibleWhen: `q1 == "Yes"`},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runBuilder(ctx, strings.NewReader("save\nquit\n"), &out, store, e); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "error:") || store.FormID() == "" {
		t.Fatalf("save failed: %s", out.String())
	}
	f, err := e.GetForm(ctx, store.FormID())
	if err != nil {
		t.Fatal(err)
	}
	if f.Fields[0].ID != "q1" || f.Fields[1].VisibleWhen != `q1 == "Yes"` {
		t.Fatalf("unexpected fields %+v", f.Fields)
	}
}

func TestFillRepromptsInvalidAnswers(t *testing.T) {
	e, ctx := newTestEngine(t)
	f, err := e.CreateForm(ctx, domain.FormInput{
		Metadata: domain.Metadata{Title: "Signup", OwnerName: "Ada"},
		Fields: []fields.Field{
			{ID: "email", Type: fields.Email, Label: "Email", Required: true},
			{ID: "plan", Type: fields.Select, Label: "Plan", Options: []string{"free", "pro"}},
			{ID: "extras", Type: fields.Checkbox, Label: "Extras", Options: []string{"x", "y", "z"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f, err = e.PublishForm(ctx, f.ID, true); err != nil {
		t.Fatal(err)
	}
	store := session.New(session.WithForm(f))
	answers := "not-an-email\n2\n1, 3\nada@example.com\n"
	var out bytes.Buffer
	sub, err := runFill(ctx, strings.NewReader(answers), &out, store, e, "Ada")
	if err != nil {
		t.Fatalf("fill: %v (%s)", err, out.String())
	}
	if !strings.Contains(out.String(), "Email: Please enter a valid email address") {
		t.Fatalf("expected reprompt, got %q", out.String())
	}
	want := `{"email":"ada@example.com","plan":"pro","extras":["x","z"]}`
	if sub.Payload != want {
		t.Fatalf("payload %s, want %s", sub.Payload, want)
	}
}

func TestRemoteFormConversionRoundTrip(t *testing.T) {
	in := domain.FormInput{
		Metadata: domain.Metadata{Title: "T", OwnerName: "O"},
		Fields:   []fields.Field{{ID: "a", Type: fields.Radio, Label: "A", Options: []string{"1", "2"}, Order: 0, VisibleWhen: "true"}},
	}
	out := sdkInput(in)
	if out.Title != "T" || out.Fields[0].Type != "radio" || out.Fields[0].VisibleWhen != "true" {
		t.Fatalf("unexpected sdk input %+v", out)
	}
}
