package api

import (
	"time"

	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/page"
	"github.com/triage-ai/phishguard/internal/settings"
)

// --- Scan triggers ---

// URLReq is the JSON body for POST /v1/scan, /v1/hover and /v1/report.
type URLReq struct {
	URL string `json:"url"`
}

// NavigateReq is the JSON body for POST /v1/navigate.
type NavigateReq struct {
	TabID   int64  `json:"tab_id"`
	FrameID int    `json:"frame_id"`
	URL     string `json:"url"`
}

// ScanResp is returned by every scan trigger.
type ScanResp struct {
	URL       string          `json:"url"`
	Verdict   *engine.Verdict `json:"verdict"` // null when no verdict was available
	Source    string          `json:"source"`
	Action    string          `json:"action"`
	Status    string          `json:"status,omitempty"`
	LatencyMs float64         `json:"latency_ms"`
}

// NavigateResp adds the navigation decision to ScanResp.
type NavigateResp struct {
	ScanResp
	Skipped  bool   `json:"skipped"`
	Redirect string `json:"redirect,omitempty"`
}

// HoverResp adds the link annotation to ScanResp.
type HoverResp struct {
	ScanResp
	Title string `json:"title,omitempty"`
}

// ReportResp is returned by POST /v1/report.
type ReportResp struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   settings.Stats `json:"stats"`
}

// --- Page inspection ---

// InspectReq is the JSON body for POST /v1/page/inspect.
type InspectReq struct {
	URL       string `json:"url"`
	HTML      string `json:"html"`
	ScanLinks bool   `json:"scan_links"`
}

// LinkResp is one hovered link from an inspected page.
type LinkResp struct {
	URL    string `json:"url"`
	Action string `json:"action"`
}

// InspectResp is returned by POST /v1/page/inspect.
type InspectResp struct {
	Banner *page.Banner `json:"banner"`
	Links  []string     `json:"links"`
	Marked []LinkResp   `json:"marked"`
}

// --- Settings ---

// UpdateSettingsReq is the JSON body for PATCH /v1/settings.
// Absent fields are left unchanged.
type UpdateSettingsReq struct {
	APIURL    *string         `json:"apiUrl,omitempty"`
	AutoBlock *bool           `json:"autoBlock,omitempty"`
	Theme     *settings.Theme `json:"theme,omitempty"`
}

// HealthResp reports whether the classification service answers.
type HealthResp struct {
	API    string `json:"api"` // "online" or "offline"
	APIURL string `json:"apiUrl"`
}

// --- Events ---

// ScanEventResp is one stored scan event.
type ScanEventResp struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Trigger      string    `json:"trigger"`
	URL          string    `json:"url"`
	Domain       string    `json:"domain"`
	Source       string    `json:"source"`
	RiskLevel    *string   `json:"risk_level"`
	SafetyScore  int32     `json:"safety_score"`
	Probability  float32   `json:"probability"`
	Explanations []string  `json:"explanations"`
	Action       string    `json:"action"`
	TabID        int64     `json:"tab_id"`
	LatencyMs    float32   `json:"latency_ms"`
}

// EventListResp is a page of scan events.
type EventListResp struct {
	Events   []ScanEventResp `json:"events"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// CommandReq runs a keyboard command, e.g. "scan-current-page".
type CommandReq struct {
	Command string `json:"command"`
}

// CommandResp reports that a command ran.
type CommandResp struct {
	Success bool `json:"success"`
}
