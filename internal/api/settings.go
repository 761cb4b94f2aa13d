package api

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/triage-ai/phishguard/internal/settings"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Settings.Stats())
}

func (d *Dependencies) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Settings.Snapshot())
}

func (d *Dependencies) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	ctx := r.Context()
	var err error
	if req.APIURL != nil {
		err = d.Settings.SetAPIURL(ctx, *req.APIURL)
	}
	if err == nil && req.AutoBlock != nil {
		err = d.Settings.SetAutoBlock(ctx, *req.AutoBlock)
	}
	if err == nil && req.Theme != nil {
		err = d.Settings.SetTheme(ctx, *req.Theme)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, d.Settings.Snapshot())
	case errors.Is(err, settings.ErrInvalidAPIURL), errors.Is(err, settings.ErrInvalidTheme):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	default:
		d.Logger.Error("failed to update settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update settings"})
	}
}

// handleAPIHealth implements GET /v1/health: whether the classification
// service currently answers.
func (d *Dependencies) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	status := "offline"
	if d.Health != nil && d.Health.Health(r.Context()) {
		status = "online"
	}
	writeJSON(w, http.StatusOK, HealthResp{API: status, APIURL: d.Settings.APIURL()})
}

var blockedPageTmpl = template.Must(template.New("blocked").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>PhishGuard blocked this page</title></head>
<body>
  <h1>🛡️ PhishGuard blocked this page</h1>
  <p>This site was flagged as a likely phishing attempt.</p>
  <p><strong>URL:</strong> <code>{{.URL}}</code></p>
  {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
  <p><a href="javascript:history.back()">Go back to safety</a></p>
</body>
</html>
`))

// handleBlockedPage implements GET /blocked?url=...&reason=..., the warning
// page blocked navigations are redirected to.
func (d *Dependencies) handleBlockedPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := struct{ URL, Reason string }{URL: q.Get("url"), Reason: q.Get("reason")}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := blockedPageTmpl.Execute(w, data); err != nil {
		d.Logger.Error("failed to render blocked page", zap.Error(err))
	}
}
