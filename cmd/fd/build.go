package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"formdeck/internal/app"
	"formdeck/internal/config"
	"formdeck/internal/domain"
	"formdeck/internal/engine"
	"formdeck/internal/events"
	"formdeck/internal/fields"
	"formdeck/internal/session"
	"formdeck/internal/validate"
	formdecksdk "formdeck/sdk/go"
)

// backend is what build and fill need from either the local engine or a server.
type backend interface {
	session.FormSaver
	session.Submitter
	GetForm(ctx context.Context, id string) (domain.Form, error)
	PublicForm(ctx context.Context, id string) (domain.Form, error)
}

// withBackend runs fn against --server when set, otherwise against the workspace database.
func withBackend(ctx context.Context, fn func(context.Context, backend) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if url := strings.TrimSpace(viper.GetString("server")); url != "" {
		c := formdecksdk.New(url)
		c.APIKey = viper.GetString("api-key")
		c.BearerToken = viper.GetString("token")
		return fn(ctx, remoteBackend{client: c})
	}
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e, err := app.Open(workspace, cfg)
	if err != nil {
		return err
	}
	defer e.DB.Close()
	return fn(events.WithActor(ctx, viper.GetString("actor-id")), e)
}

var _ backend = engine.Engine{}

func buildCmd() *cobra.Command {
	var formID, file string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Edit a form interactively",
		Long: `Starts a line-oriented builder. Type 'help' for commands.
With --form the builder edits an existing form; with --file it starts from a YAML definition.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				store := session.New()
				switch {
				case formID != "":
					f, err := b.GetForm(ctx, formID)
					if err != nil {
						return err
					}
					store.Load(f)
				case file != "":
					in, err := readFormInput(file)
					if err != nil {
						return err
					}
					if err := store.LoadInput(in); err != nil {
						return err
					}
				}
				return runBuilder(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), store, b)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "edit this form")
	cmd.Flags().StringVarP(&file, "file", "f", "", "start from a YAML definition")
	return cmd
}

const builderHelp = `commands:
  title <text> | description <text> | owner <text>
  add <type>                 types: %s
  label <field> <text>
  placeholder <field> <text>
  required <field> on|off
  options <field> a, b, c
  visible <field> <expr>     empty expr clears the condition
  type <field> <type>
  move <field> <target>      drop field where target is
  remove <field>
  show | save | publish | reset | quit
fields may be given by id or by 1-based position`

// runBuilder reads commands from in until quit or EOF.
func runBuilder(ctx context.Context, in io.Reader, out io.Writer, store *session.Store, api session.FormSaver) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, "formdeck builder; type 'help' for commands")
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if verb == "quit" || verb == "exit" {
			return nil
		}
		if err := builderStep(ctx, out, store, api, verb, rest); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func builderStep(ctx context.Context, out io.Writer, store *session.Store, api session.FormSaver, verb, rest string) error {
	switch verb {
	case "help":
		names := make([]string, 0, len(fields.All()))
		for _, t := range fields.All() {
			names = append(names, t.String())
		}
		fmt.Fprintf(out, builderHelp+"\n", strings.Join(names, ", "))
	case "title":
		store.UpdateMetadata(session.MetadataPatch{Title: &rest})
	case "description":
		store.UpdateMetadata(session.MetadataPatch{Description: &rest})
	case "owner":
		store.UpdateMetadata(session.MetadataPatch{OwnerName: &rest})
	case "add":
		t, err := fields.ParseType(rest)
		if err != nil {
			return err
		}
		f, err := store.AddField(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s (%s)\n", f.ID, f.Label)
	case "label", "placeholder", "required", "options", "visible", "type":
		ref, arg, _ := strings.Cut(rest, " ")
		id, err := resolveField(store, ref)
		if err != nil {
			return err
		}
		patch, err := fieldPatch(verb, strings.TrimSpace(arg))
		if err != nil {
			return err
		}
		if _, err := store.UpdateField(id, patch); err != nil {
			return err
		}
	case "move":
		src, dst, _ := strings.Cut(rest, " ")
		from, err := resolveField(store, src)
		if err != nil {
			return err
		}
		to, err := resolveField(store, strings.TrimSpace(dst))
		if err != nil {
			return err
		}
		store.MoveField(from, to)
	case "remove":
		id, err := resolveField(store, rest)
		if err != nil {
			return err
		}
		store.DeleteField(id)
	case "show":
		printDraft(out, store.Snapshot())
	case "save":
		id, err := store.Save(ctx, api)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "saved", id)
	case "publish":
		f, err := store.Publish(ctx, api)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "published %s\n", f.ID)
	case "reset":
		store.ResetAll()
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

func fieldPatch(verb, arg string) (session.FieldPatch, error) {
	var p session.FieldPatch
	switch verb {
	case "label":
		p.Label = &arg
	case "placeholder":
		p.Placeholder = &arg
	case "required":
		on := arg == "on" || arg == "yes" || arg == "true"
		p.Required = &on
	case "options":
		var opts []string
		for _, o := range strings.Split(arg, ",") {
			if o = strings.TrimSpace(o); o != "" {
				opts = append(opts, o)
			}
		}
		p.Options = &opts
	case "visible":
		p.VisibleWhen = &arg
	case "type":
		t, err := fields.ParseType(arg)
		if err != nil {
			return p, err
		}
		p.Type = &t
	}
	return p, nil
}

// resolveField accepts a field id or a 1-based position.
func resolveField(store *session.Store, ref string) (string, error) {
	fs := store.Fields()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(fs) {
			return "", fmt.Errorf("no field at position %d", n)
		}
		return fs[n-1].ID, nil
	}
	for _, f := range fs {
		if f.ID == ref {
			return ref, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", ref)
}

func printDraft(out io.Writer, snap session.Snapshot) {
	id := snap.FormID
	if id == "" {
		id = "(unsaved)"
	}
	fmt.Fprintf(out, "%s  %s by %s\n", id, snap.Metadata.Title, snap.Metadata.OwnerName)
	if snap.Metadata.Description != "" {
		fmt.Fprintln(out, snap.Metadata.Description)
	}
	for i, f := range snap.Fields {
		req := ""
		if f.Required {
			req = " *"
		}
		fmt.Fprintf(out, "%2d. [%s] %s%s (%s)", i+1, f.Type, f.Label, req, f.ID)
		if len(f.Options) > 0 {
			fmt.Fprintf(out, " options: %s", strings.Join(f.Options, ", "))
		}
		if f.VisibleWhen != "" {
			fmt.Fprintf(out, " when: %s", f.VisibleWhen)
		}
		fmt.Fprintln(out)
	}
}

func fillCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "fill <form-id>",
		Short: "Answer a published form from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				f, err := b.PublicForm(ctx, args[0])
				if err != nil {
					return err
				}
				store := session.New(session.WithForm(f))
				sub, err := runFill(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), store, b, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", sub.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "submitter name")
	return cmd
}

// runFill prompts for every visible field, then submits. Rejected answers are
// asked again until the submission is accepted or input ends.
func runFill(ctx context.Context, in io.Reader, out io.Writer, store *session.Store, api session.Submitter, submitter string) (domain.Submission, error) {
	sc := bufio.NewScanner(in)
	pending := store.Fields()
	for {
		for _, f := range pending {
			if !fieldVisible(store, f) {
				continue
			}
			if err := promptField(sc, out, store, f); err != nil {
				return domain.Submission{}, err
			}
		}
		sub, err := store.Submit(ctx, api, submitter)
		if err == nil {
			return sub, nil
		}
		errs, ok := fieldErrors(err)
		if !ok {
			return domain.Submission{}, err
		}
		store.SetErrors(errs)
		pending = pending[:0]
		for _, f := range store.Fields() {
			if msg, bad := errs[f.ID]; bad {
				fmt.Fprintf(out, "%s: %s\n", f.Label, msg)
				pending = append(pending, f)
			}
		}
	}
}

func fieldVisible(store *session.Store, f fields.Field) bool {
	snap := store.Snapshot()
	ok, err := validate.Visible(f, validate.Env(snap.Fields, snap.Values))
	return err != nil || ok
}

// fieldErrors extracts per-field messages from local, engine and API rejections.
func fieldErrors(err error) (validate.Errors, bool) {
	var local *session.InvalidError
	if errors.As(err, &local) {
		return local.Errors, true
	}
	var server *engine.ValidationError
	if errors.As(err, &server) {
		return server.Errors, true
	}
	var apiErr *formdecksdk.APIError
	if errors.As(err, &apiErr) {
		if errs := apiErr.FieldErrors(); len(errs) > 0 {
			return validate.Errors(errs), true
		}
	}
	return nil, false
}

func promptField(sc *bufio.Scanner, out io.Writer, store *session.Store, f fields.Field) error {
	var value any
	el := fields.Render(f, store.Value(f.ID), func(v any) { value = v }, false)
	label := el.Label
	if el.Required {
		label += " *"
	}
	choices := choiceOptions(el)
	switch el.Control {
	case fields.ControlUnknown:
		fmt.Fprintf(out, "%s: %s\n", el.Label, el.Message)
		return nil
	case fields.ControlSelect, fields.ControlRadioGroup, fields.ControlCheckboxGroup:
		fmt.Fprintln(out, label)
		for i, o := range choices {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o.Label)
		}
	default:
		if el.Placeholder != "" {
			label += " (" + el.Placeholder + ")"
		}
	}
	if el.Control == fields.ControlCheckboxGroup {
		fmt.Fprint(out, "choose numbers separated by commas: ")
	} else if el.Control == fields.ControlFile {
		fmt.Fprintf(out, "%s path: ", label)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return err
		}
		return io.ErrUnexpectedEOF
	}
	line := strings.TrimSpace(sc.Text())

	switch el.Control {
	case fields.ControlCheckboxGroup:
		// Each answer replaces the previous selection.
		value = []string{}
		el = fields.Render(f, value, func(v any) { value = v }, false)
		for _, part := range strings.Split(line, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(choices) {
				continue
			}
			if err := el.Handle(fields.Event{Value: choices[n-1].Value, Checked: true}); err != nil {
				return err
			}
			el = fields.Render(f, value, func(v any) { value = v }, false)
		}
	case fields.ControlSelect, fields.ControlRadioGroup:
		choice := line
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(choices) {
			choice = choices[n-1].Value
		}
		if err := el.Handle(fields.Event{Value: choice}); err != nil {
			return err
		}
	case fields.ControlFile:
		var ref *fields.FileRef
		if line != "" {
			ref = &fields.FileRef{Name: line}
			if st, err := os.Stat(line); err == nil {
				ref.Size = st.Size()
			}
		}
		if err := el.Handle(fields.Event{File: ref}); err != nil {
			return err
		}
	default:
		if err := el.Handle(fields.Event{Value: line}); err != nil {
			return err
		}
	}
	return store.UpdateValue(f.ID, value)
}

// choiceOptions drops the empty prompt entry of select controls.
func choiceOptions(el fields.Element) []fields.Option {
	out := make([]fields.Option, 0, len(el.Options))
	for _, o := range el.Options {
		if o.Value != "" {
			out = append(out, o)
		}
	}
	return out
}

// remoteBackend adapts the HTTP client to the session interfaces.
type remoteBackend struct {
	client *formdecksdk.Client
}

func (r remoteBackend) CreateForm(ctx context.Context, in domain.FormInput) (domain.Form, error) {
	f, err := r.client.CreateForm(ctx, sdkInput(in))
	return fromSDKForm(f), err
}

func (r remoteBackend) UpdateForm(ctx context.Context, id string, in domain.FormInput) (domain.Form, error) {
	f, err := r.client.UpdateForm(ctx, id, sdkInput(in))
	return fromSDKForm(f), err
}

func (r remoteBackend) PublishForm(ctx context.Context, id string, published bool) (domain.Form, error) {
	f, err := r.client.PublishForm(ctx, id, published)
	return fromSDKForm(f), err
}

func (r remoteBackend) GetForm(ctx context.Context, id string) (domain.Form, error) {
	f, err := r.client.GetForm(ctx, id)
	return fromSDKForm(f), err
}

func (r remoteBackend) PublicForm(ctx context.Context, id string) (domain.Form, error) {
	f, err := r.client.PublicForm(ctx, id)
	return fromSDKForm(f), err
}

func (r remoteBackend) Submit(ctx context.Context, formID string, data map[string]any, submitterName string) (domain.Submission, error) {
	s, err := r.client.Submit(ctx, formID, data, submitterName)
	return domain.Submission{
		ID:            s.ID,
		FormID:        s.FormID,
		FormTitle:     s.FormTitle,
		SubmitterName: s.SubmitterName,
		Payload:       s.Payload,
		CreatedAt:     s.CreatedAt,
	}, err
}

func sdkInput(in domain.FormInput) formdecksdk.FormInput {
	out := formdecksdk.FormInput{
		Title:       in.Title,
		Description: in.Description,
		OwnerName:   in.OwnerName,
		Fields:      make([]formdecksdk.Field, 0, len(in.Fields)),
	}
	for _, f := range in.Fields {
		out.Fields = append(out.Fields, formdecksdk.Field{
			ID:          f.ID,
			Type:        f.Type.String(),
			Label:       f.Label,
			Required:    f.Required,
			Placeholder: f.Placeholder,
			Options:     f.Options,
			Order:       f.Order,
			VisibleWhen: f.VisibleWhen,
		})
	}
	return out
}

func fromSDKForm(f formdecksdk.Form) domain.Form {
	out := domain.Form{
		ID:              f.ID,
		Title:           f.Title,
		Description:     f.Description,
		OwnerName:       f.OwnerName,
		IsPublished:     f.IsPublished,
		IsActive:        f.IsActive,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
		SubmissionCount: f.SubmissionCount,
		Fields:          make([]fields.Field, 0, len(f.Fields)),
	}
	if f.PublishedAt != "" {
		published := f.PublishedAt
		out.PublishedAt = &published
	}
	for _, fd := range f.Fields {
		out.Fields = append(out.Fields, fields.Field{
			ID:          fd.ID,
			Type:        fields.Type(fd.Type),
			Label:       fd.Label,
			Required:    fd.Required,
			Placeholder: fd.Placeholder,
			Options:     fd.Options,
			Order:       fd.Order,
			VisibleWhen: fd.VisibleWhen,
		})
	}
	return out
}
