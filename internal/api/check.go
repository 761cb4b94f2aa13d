package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/agent"
	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/page"
	"go.uber.org/zap"
)

// validURL reports whether raw is an absolute URL worth scanning.
func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != ""
}

func toScanResp(rawURL string, out engine.Outcome, act action.Action) ScanResp {
	resp := ScanResp{
		URL:       rawURL,
		Verdict:   out.Verdict,
		Source:    out.Source.String(),
		Action:    string(act),
		LatencyMs: float64(out.Latency) / float64(time.Millisecond),
	}
	if out.Verdict != nil {
		resp.Status = action.Status(out.Verdict.RiskLevel)
	}
	return resp
}

// readURLReq decodes and validates a {"url": ...} body, writing the error
// response itself when it fails.
func readURLReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req URLReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return "", false
	}
	req.URL = strings.TrimSpace(req.URL)
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "url must be an absolute URL"})
		return "", false
	}
	return req.URL, true
}

// handleScan implements POST /v1/scan, the popup's manual scan.
func (d *Dependencies) handleScan(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := readURLReq(w, r)
	if !ok {
		return
	}
	out, act := d.Agent.ScanNow(requestContext(r), rawURL)
	writeJSON(w, http.StatusOK, toScanResp(rawURL, out, act))
}

// handleNavigate implements POST /v1/navigate, the pre-navigation hook.
func (d *Dependencies) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "url is required"})
		return
	}

	ev := agent.NavigationEvent{TabID: req.TabID, FrameID: req.FrameID, URL: req.URL}
	out, act, handled := d.Agent.HandleNavigation(requestContext(r), ev)
	if !handled {
		writeJSON(w, http.StatusOK, NavigateResp{
			ScanResp: ScanResp{URL: req.URL, Source: out.Source.String(), Action: string(act)},
			Skipped:  true,
		})
		return
	}

	resp := NavigateResp{ScanResp: toScanResp(req.URL, out, act)}
	if act == action.ActionBlocked {
		resp.Redirect = d.Dispatcher.BlockedTarget(req.URL, out.Verdict)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHover implements POST /v1/hover.
func (d *Dependencies) handleHover(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := readURLReq(w, r)
	if !ok {
		return
	}
	out, act := d.Agent.HandleHover(requestContext(r), rawURL)
	resp := HoverResp{ScanResp: toScanResp(rawURL, out, act)}
	if act == action.ActionMarked {
		resp.Title = action.HoverWarning(out.Verdict.SafetyScore)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReport implements POST /v1/report.
func (d *Dependencies) handleReport(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := readURLReq(w, r)
	if !ok {
		return
	}
	d.Agent.Report(requestContext(r), rawURL)
	writeJSON(w, http.StatusOK, ReportResp{
		Success: true,
		Message: "Phishing report submitted!",
		Stats:   d.Settings.Stats(),
	})
}

// handleInspect implements POST /v1/page/inspect: the in-page checks for a
// loaded document. With scan_links set, every link is hovered through the
// bridge.
func (d *Dependencies) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req InspectReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "url must be an absolute URL"})
		return
	}
	if req.ScanLinks && d.Bridge == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Link scanning not available"})
		return
	}

	doc, err := page.Parse(req.URL, strings.NewReader(req.HTML))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid page"})
		return
	}

	resp := InspectResp{
		Banner: doc.DetectFakeLoginForm(),
		Links:  doc.Links(),
		Marked: []LinkResp{},
	}

	if req.ScanLinks {
		ctx := requestContext(r)
		p := page.New(req.URL, d.Bridge, d.Dispatcher, d.Logger)
		for _, link := range resp.Links {
			act, err := p.Hover(ctx, link)
			if err != nil {
				d.Logger.Warn("link scan failed", zap.String("link", link), zap.Error(err))
				continue
			}
			if act == action.ActionMarked {
				resp.Marked = append(resp.Marked, LinkResp{URL: link, Action: string(act)})
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCommand implements POST /v1/command, the keyboard shortcut hook.
func (d *Dependencies) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	err := d.Agent.HandleCommand(r.Context(), req.Command)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CommandResp{Success: true})
	case errors.Is(err, agent.ErrUnknownCommand):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	default:
		d.Logger.Error("command failed", zap.String("command", req.Command), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Command failed"})
	}
}
