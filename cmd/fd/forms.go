package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"formdeck/internal/config"
	"formdeck/internal/csvexport"
	"formdeck/internal/domain"
	"formdeck/internal/engine"
	"formdeck/internal/export"
	"formdeck/internal/flatten"
	"formdeck/internal/listing"
	tbl "formdeck/internal/table"
)

func formCmd() *cobra.Command {
	form := &cobra.Command{Use: "form", Short: "Manage forms"}
	form.AddCommand(formListCmd())
	form.AddCommand(formShowCmd())
	form.AddCommand(formCreateCmd())
	form.AddCommand(formToggleCmd("publish", "Publish a form", func(ctx context.Context, e engine.Engine, id string) (domain.Form, error) {
		return e.PublishForm(ctx, id, true)
	}))
	form.AddCommand(formToggleCmd("unpublish", "Return a form to draft", func(ctx context.Context, e engine.Engine, id string) (domain.Form, error) {
		return e.PublishForm(ctx, id, false)
	}))
	form.AddCommand(formToggleCmd("archive", "Stop a form from accepting submissions", func(ctx context.Context, e engine.Engine, id string) (domain.Form, error) {
		return e.SetActive(ctx, id, false)
	}))
	form.AddCommand(formToggleCmd("restore", "Reactivate an archived form", func(ctx context.Context, e engine.Engine, id string) (domain.Form, error) {
		return e.SetActive(ctx, id, true)
	}))
	form.AddCommand(formDeleteCmd())
	return form
}

func formListCmd() *cobra.Command {
	var q tbl.Query
	var status, active string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				forms, err := e.ListForms(ctx)
				if err != nil {
					return err
				}
				q.Filters = map[string]string{listing.FilterStatus: status, listing.FilterActive: active}
				page, err := listing.FormPage(forms, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Owner", "Status", "Active", "Submissions", "Created"})
				for _, f := range page.Items {
					tw.AppendRow(table.Row{f.ID, f.Title, f.OwnerName, f.Status(), f.IsActive, f.SubmissionCount, f.CreatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "", pageFooter(page.Start, page.End, page.TotalItems)})
				tw.Render()
				return nil
			})
		},
	}
	addListFlags(cmd, &q)
	cmd.Flags().StringVar(&status, "status", "", "all, published or draft")
	cmd.Flags().StringVar(&active, "active", "", "all, active or archived")
	return cmd
}

func addListFlags(cmd *cobra.Command, q *tbl.Query) {
	cmd.Flags().StringVar(&q.Search, "search", "", "case-insensitive search")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "sort key")
	cmd.Flags().StringVar(&q.Order, "order", "", "asc or desc")
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", tbl.DefaultPageSize, "items per page")
}

func pageFooter(start, end, total int) string {
	return fmt.Sprintf("%d-%d of %d", start, end, total)
}

func formShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <form-id>",
		Short: "Show a form and its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.GetForm(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(f)
				}
				printFormSummary(f)
				return nil
			})
		},
	}
}

func printFormSummary(f domain.Form) {
	fmt.Printf("%s  %s [%s]\n", f.ID, f.Title, f.Status())
	if f.Description != "" {
		fmt.Println(f.Description)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Type", "Label", "Required", "Options", "Visible when"})
	for _, fd := range f.Fields {
		tw.AppendRow(table.Row{fd.Order, fd.ID, fd.Type, fd.Label, fd.Required, strings.Join(fd.Options, flatten.ListSeparator), fd.VisibleWhen})
	}
	tw.Render()
}

func formCreateCmd() *cobra.Command {
	var file, id string
	var publish bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or replace a form from a YAML definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			in, err := readFormInput(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var f domain.Form
				if id == "" {
					f, err = e.CreateForm(ctx, in)
				} else {
					f, err = e.UpdateForm(ctx, id, in)
				}
				if err != nil {
					return err
				}
				if publish {
					if f, err = e.PublishForm(ctx, f.ID, true); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(f)
				}
				printFormSummary(f)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML form definition")
	cmd.Flags().StringVar(&id, "id", "", "replace this form instead of creating one")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish after saving")
	return cmd
}

func readFormInput(path string) (domain.FormInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.FormInput{}, err
	}
	var in domain.FormInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return domain.FormInput{}, fmt.Errorf("invalid form yaml: %w", err)
	}
	return in, nil
}

func formToggleCmd(use, short string, fn func(context.Context, engine.Engine, string) (domain.Form, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <form-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := fn(ctx, e, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(f)
				}
				active := "active"
				if !f.IsActive {
					active = "archived"
				}
				fmt.Printf("%s is %s and %s\n", f.ID, f.Status(), active)
				return nil
			})
		},
	}
}

func formDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <form-id>",
		Short: "Delete a form and all of its submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteForm(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{Use: "submission", Short: "Inspect submissions"}
	sub.AddCommand(submissionListCmd())
	sub.AddCommand(submissionShowCmd())
	sub.AddCommand(submissionDeleteCmd())
	return sub
}

func submissionListCmd() *cobra.Command {
	var q tbl.Query
	var formID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					subs []domain.Submission
					err  error
				)
				if formID != "" {
					subs, err = e.ListSubmissions(ctx, formID)
				} else {
					subs, err = e.ListAllSubmissions(ctx)
				}
				if err != nil {
					return err
				}
				page, err := listing.SubmissionPage(subs, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Form", "Submitter", "Submitted"})
				for _, s := range page.Items {
					tw.AppendRow(table.Row{s.ID, s.FormTitle, s.DisplayName(), s.CreatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", pageFooter(page.Start, page.End, page.TotalItems)})
				tw.Render()
				return nil
			})
		},
	}
	addListFlags(cmd, &q)
	cmd.Flags().StringVar(&formID, "form", "", "only this form's submissions")
	return cmd
}

func submissionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Show a submission as flattened key/value rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				cells := flatten.Flatten(s.Payload)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"submission": s, "cells": cells})
				}
				fmt.Printf("%s  %s by %s at %s\n", s.ID, s.FormTitle, s.DisplayName(), s.CreatedAt)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Value"})
				for _, c := range cells {
					tw.AppendRow(table.Row{c.Key, c.Value})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func submissionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <submission-id>",
		Short: "Delete a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteSubmission(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var req export.Request
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write forms or submissions to a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				exportCfg := config.ExportConfig{}
				if e.Config != nil {
					exportCfg = e.Config.Export
				}
				loc, err := exportCfg.Location()
				if err != nil {
					return err
				}
				res, err := export.Exporter{Source: e, Location: loc, Now: e.Now}.Build(ctx, req)
				if err != nil {
					return err
				}
				var opts []csvexport.Option
				if exportCfg.WithBOM() {
					opts = append(opts, csvexport.WithBOM())
				}
				if exportCfg.Header == config.HeaderSuperset {
					opts = append(opts, csvexport.WithSupersetHeader())
				}
				path := filepath.Join(outDir, res.Filename)
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := csvexport.Write(f, res.Rows, opts...); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("wrote %d rows to %s\n", len(res.Rows), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", export.TypeSubmissions, "forms or submissions")
	cmd.Flags().StringVar(&req.Format, "format", "", "forms: overview or detailed; submissions: all or form")
	cmd.Flags().StringVar(&req.FormID, "form", "", "form id for --format form")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Forms", "Published", "Drafts", "Active", "Submissions"})
				tw.AppendRow(table.Row{st.TotalForms, st.PublishedForms, st.DraftForms, st.ActiveForms, st.TotalSubmissions})
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var n int
	var entityID string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, entityID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "only events for this form or submission")
	return cmd
}
