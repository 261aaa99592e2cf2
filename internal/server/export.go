package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"formdeck/internal/config"
	"formdeck/internal/csvexport"
	"formdeck/internal/engine"
	"formdeck/internal/export"
)

// registerExport mounts the CSV download outside Huma since the body is not JSON.
// The form is selected with formId; form_id is accepted as an alias.
func registerExport(r chi.Router, basePath string, e engine.Engine) {
	r.Get(path.Join(basePath, "export"), func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		exportCfg := config.ExportConfig{}
		if e.Config != nil {
			exportCfg = e.Config.Export
		}
		loc, err := exportCfg.Location()
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		formID := strings.TrimSpace(q.Get("formId"))
		if formID == "" {
			formID = strings.TrimSpace(q.Get("form_id"))
		}
		x := export.Exporter{Source: e, Location: loc, Now: e.Now}
		res, err := x.Build(req.Context(), export.Request{
			Type:   strings.TrimSpace(q.Get("type")),
			Format: strings.TrimSpace(q.Get("format")),
			FormID: formID,
		})
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		var opts []csvexport.Option
		if exportCfg.WithBOM() {
			opts = append(opts, csvexport.WithBOM())
		}
		if exportCfg.Header == config.HeaderSuperset {
			opts = append(opts, csvexport.WithSupersetHeader())
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
		w.WriteHeader(http.StatusOK)
		_ = csvexport.Write(w, res.Rows, opts...)
	})
}
