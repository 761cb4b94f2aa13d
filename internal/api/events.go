package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/triage-ai/phishguard/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("trigger"); v != "" {
		params.Trigger = &v
	}
	if v := q.Get("risk_level"); v != "" {
		params.RiskLevel = &v
	}
	if v := q.Get("domain"); v != "" {
		params.Domain = &v
	}
	if v := q.Get("action"); v != "" {
		params.Action = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]ScanEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 || days > 90 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "days must be between 1 and 90"})
		return
	}

	summary, err := d.Reader.GetSummary(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to summarize events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to summarize events"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func eventRowToResp(e chread.EventRow) ScanEventResp {
	var risk *string
	if e.RiskLevel != "" {
		r := e.RiskLevel
		risk = &r
	}
	explanations := e.Explanations
	if explanations == nil {
		explanations = []string{}
	}
	return ScanEventResp{
		RequestID:    e.RequestID,
		Timestamp:    e.Timestamp,
		Trigger:      e.Trigger,
		URL:          e.URL,
		Domain:       e.Domain,
		Source:       e.Source,
		RiskLevel:    risk,
		SafetyScore:  e.SafetyScore,
		Probability:  e.Probability,
		Explanations: explanations,
		Action:       e.Action,
		TabID:        e.TabID,
		LatencyMs:    e.LatencyMs,
	}
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
