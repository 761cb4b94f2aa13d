package action

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/settings"
	"github.com/triage-ai/phishguard/internal/storage"
	"go.uber.org/zap"
)

// Trigger identifies where a URL was observed.
type Trigger string

const (
	TriggerNavigation Trigger = "navigation"
	TriggerHover      Trigger = "hover"
	TriggerManual     Trigger = "manual"
	TriggerReport     Trigger = "report"
)

// Action is the side effect performed for one trigger.
type Action string

const (
	ActionNone      Action = "none"
	ActionBlocked   Action = "blocked"
	ActionMarked    Action = "marked"
	ActionDisplayed Action = "displayed"
	ActionError     Action = "error"
	ActionReported  Action = "reported"
)

// DefaultBlockedPage is the local warning page a blocked tab is sent to.
const DefaultBlockedPage = "blocked.html"

// Messages shown after a manual scan or a report.
const (
	scanFailedMessage = "Failed to scan URL. Check API connection."
	reportedMessage   = "Phishing report submitted!"
	fallbackReason    = "Phishing detected"
)

// Navigator redirects a browser tab.
type Navigator interface {
	Redirect(ctx context.Context, tabID int64, target string) error
}

// LinkMarker annotates a link in the page it was hovered in.
type LinkMarker interface {
	MarkDangerous(ctx context.Context, href, title string) error
}

// Presenter shows manual scan results and notifications to the user.
type Presenter interface {
	Present(ctx context.Context, d Display)
}

// Display is what the popup renders after a manual scan or a report.
type Display struct {
	URL     string `json:"url"`
	Score   *int   `json:"score,omitempty"` // nil in the error state
	Status  string `json:"status"`          // SAFE, SUSPICIOUS, PHISHING, ERROR or REPORTED
	Message string `json:"message"`
}

// Settings is the subset of the settings store the dispatcher mutates.
type Settings interface {
	AutoBlock() bool
	Increment(ctx context.Context, c settings.Counter) error
	SetCurrentPageScore(ctx context.Context, score int) error
}

// Config wires the dispatcher to its host.
type Config struct {
	Settings    Settings
	Navigator   Navigator
	Marker      LinkMarker
	Presenter   Presenter
	Events      storage.EventWriter
	BlockedPage string // defaults to DefaultBlockedPage
}

// Dispatcher turns verdicts into side effects and counter updates.
// Counters are only touched here.
type Dispatcher struct {
	settings    Settings
	navigator   Navigator
	marker      LinkMarker
	presenter   Presenter
	events      storage.EventWriter
	blockedPage string
	logger      *zap.Logger
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. Settings and Events are required.
func NewDispatcher(cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("NewDispatcher: settings is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("NewDispatcher: event writer is required")
	}
	page := cfg.BlockedPage
	if page == "" {
		page = DefaultBlockedPage
	}
	return &Dispatcher{
		settings:    cfg.Settings,
		navigator:   cfg.Navigator,
		marker:      cfg.Marker,
		presenter:   cfg.Presenter,
		events:      cfg.Events,
		blockedPage: page,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// OnNavigation blocks a top-level navigation to a phishing page when auto-block
// is enabled, and records the page's safety score (0 when unknown).
func (d *Dispatcher) OnNavigation(ctx context.Context, tabID int64, rawURL string, out engine.Outcome) Action {
	act := ActionNone
	v := out.Verdict

	if v.IsPhishing() && d.settings.AutoBlock() {
		act = ActionBlocked
		if d.navigator != nil {
			if err := d.navigator.Redirect(ctx, tabID, d.BlockedTarget(rawURL, v)); err != nil {
				d.logger.Warn("redirect failed", zap.Int64("tab_id", tabID), zap.Error(err))
			}
		}
		d.increment(ctx, settings.CounterBlocked)
	}

	score := 0
	if v != nil {
		score = v.SafetyScore
	}
	if err := d.settings.SetCurrentPageScore(ctx, score); err != nil {
		d.logger.Warn("saving current page score failed", zap.Error(err))
	}

	d.emit(TriggerNavigation, rawURL, tabID, out, act)
	return act
}

// BlockedTarget is the warning page a navigation to rawURL is redirected to.
func (d *Dispatcher) BlockedTarget(rawURL string, v *engine.Verdict) string {
	return BlockedPageURL(d.blockedPage, rawURL, Reason(v))
}

// OnHover marks a hovered link whose target is phishing. It never blocks and
// never touches the counters.
func (d *Dispatcher) OnHover(ctx context.Context, href string, out engine.Outcome) Action {
	act := ActionNone
	if v := out.Verdict; v.IsPhishing() {
		act = ActionMarked
		if d.marker != nil {
			if err := d.marker.MarkDangerous(ctx, href, HoverWarning(v.SafetyScore)); err != nil {
				d.logger.Warn("marking link failed", zap.String("href", href), zap.Error(err))
			}
		}
	}
	d.emit(TriggerHover, href, 0, out, act)
	return act
}

// OnManualScan presents a user-requested scan. A completed scan counts as
// scanned, and as blocked when phishing. An absent verdict is an error state
// and changes no counters.
func (d *Dispatcher) OnManualScan(ctx context.Context, rawURL string, out engine.Outcome) Action {
	v := out.Verdict
	if v == nil {
		d.present(ctx, Display{URL: rawURL, Status: "ERROR", Message: scanFailedMessage})
		d.emit(TriggerManual, rawURL, 0, out, ActionError)
		return ActionError
	}

	d.increment(ctx, settings.CounterScanned)
	if v.IsPhishing() {
		d.increment(ctx, settings.CounterBlocked)
	}

	score := v.SafetyScore
	d.present(ctx, Display{
		URL:     rawURL,
		Score:   &score,
		Status:  Status(v.RiskLevel),
		Message: "Scan complete: " + v.Vibe,
	})
	d.emit(TriggerManual, rawURL, 0, out, ActionDisplayed)
	return ActionDisplayed
}

// OnReport counts a user phishing report. No verdict is involved.
func (d *Dispatcher) OnReport(ctx context.Context, rawURL string) Action {
	d.increment(ctx, settings.CounterReports)
	d.present(ctx, Display{URL: rawURL, Status: "REPORTED", Message: reportedMessage})
	d.emit(TriggerReport, rawURL, 0, engine.Outcome{}, ActionReported)
	return ActionReported
}

func (d *Dispatcher) increment(ctx context.Context, c settings.Counter) {
	if err := d.settings.Increment(ctx, c); err != nil {
		d.logger.Error("counter update failed", zap.Stringer("counter", c), zap.Error(err))
	}
}

func (d *Dispatcher) present(ctx context.Context, disp Display) {
	if d.presenter != nil {
		d.presenter.Present(ctx, disp)
	}
}

func (d *Dispatcher) emit(trigger Trigger, rawURL string, tabID int64, out engine.Outcome, act Action) {
	domain, _ := engine.RegisteredDomain(rawURL)
	event := &storage.ScanEvent{
		RequestID: uuid.NewString(),
		Timestamp: d.now().UTC(),
		Trigger:   string(trigger),
		URL:       storage.Truncate(rawURL, storage.URLMaxLength),
		Domain:    domain,
		Source:    out.Source.String(),
		Action:    string(act),
		TabID:     tabID,
		LatencyMs: float32(out.Latency.Microseconds()) / 1000,
	}
	if v := out.Verdict; v != nil {
		event.RiskLevel = string(v.RiskLevel)
		event.SafetyScore = int32(v.SafetyScore)
		event.Probability = float32(v.Probability)
		event.Explanations = v.Explanations
	}
	d.events.Write(event)
}

// Status is the popup badge text for a risk level.
func Status(r engine.RiskLevel) string {
	switch r {
	case engine.RiskSafe:
		return "SAFE"
	case engine.RiskSuspicious:
		return "SUSPICIOUS"
	default:
		return "PHISHING"
	}
}

// Reason is the human-readable reason carried to the blocked page.
func Reason(v *engine.Verdict) string {
	if v == nil {
		return ""
	}
	if v.Vibe != "" {
		return v.Vibe
	}
	if len(v.Explanations) > 0 {
		return v.Explanations[0]
	}
	return fallbackReason
}

// BlockedPageURL builds the warning page reference for a blocked navigation.
func BlockedPageURL(page, blockedURL, reason string) string {
	sep := "?"
	if strings.Contains(page, "?") {
		sep = "&"
	}
	return page + sep + "url=" + escapeComponent(blockedURL) + "&reason=" + escapeComponent(reason)
}

// escapeComponent query-escapes s with spaces as %20, so the warning page
// can decode it with either query or path unescaping.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// HoverWarning is the title set on a dangerous link.
func HoverWarning(score int) string {
	return fmt.Sprintf("⚠️ PhishGuard Warning: This link may be dangerous (Safety Score: %d/100)", score)
}
