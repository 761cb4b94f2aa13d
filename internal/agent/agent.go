package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/bridge"
	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/settings"
	"go.uber.org/zap"
)

// CommandScanCurrentPage is the keyboard shortcut that opens the popup.
const CommandScanCurrentPage = "scan-current-page"

// DefaultPopupPage is opened as a regular page when the popup cannot be shown.
const DefaultPopupPage = "popup.html"

var ErrUnknownCommand = errors.New("unknown command")

// internalSchemes are browser-internal pages that are never scanned.
var internalSchemes = []string{"chrome://", "chrome-extension://", "about:", "edge://"}

// Opener shows the popup surface.
type Opener interface {
	OpenPopup(ctx context.Context) error
	OpenTab(ctx context.Context, url string) error
}

// NavigationEvent is a pre-navigation notification from the browser.
type NavigationEvent struct {
	TabID   int64  `json:"tab_id"`
	FrameID int    `json:"frame_id"`
	URL     string `json:"url"`
}

// Config wires the agent.
type Config struct {
	Scanner    *engine.Scanner
	Dispatcher *action.Dispatcher
	Settings   *settings.Store
	Opener     Opener
	PopupPage  string
}

// Agent is the background context: every trigger enters here, is scanned
// through the one Scanner and handed to the Dispatcher.
type Agent struct {
	scanner    *engine.Scanner
	dispatcher *action.Dispatcher
	settings   *settings.Store
	opener     Opener
	popupPage  string
	logger     *zap.Logger
}

// New creates an Agent. Scanner, Dispatcher and Settings are required.
func New(cfg Config, logger *zap.Logger) (*Agent, error) {
	if cfg.Scanner == nil || cfg.Dispatcher == nil || cfg.Settings == nil {
		return nil, fmt.Errorf("agent.New: scanner, dispatcher and settings are required")
	}
	page := cfg.PopupPage
	if page == "" {
		page = DefaultPopupPage
	}
	a := &Agent{
		scanner:    cfg.Scanner,
		dispatcher: cfg.Dispatcher,
		settings:   cfg.Settings,
		opener:     cfg.Opener,
		popupPage:  page,
		logger:     logger,
	}
	cfg.Settings.Subscribe(func(c settings.Change) {
		logger.Debug("settings changed", zap.String("key", c.Key))
	})
	return a, nil
}

// Skippable reports whether a navigation is never scanned: sub-frames and
// browser-internal pages.
func Skippable(ev NavigationEvent) bool {
	if ev.FrameID != 0 {
		return true
	}
	for _, s := range internalSchemes {
		if strings.HasPrefix(ev.URL, s) {
			return true
		}
	}
	return false
}

// HandleNavigation scans a top-level navigation and acts on the verdict.
// ok is false when the navigation was skipped.
func (a *Agent) HandleNavigation(ctx context.Context, ev NavigationEvent) (out engine.Outcome, act action.Action, ok bool) {
	if Skippable(ev) {
		return engine.Outcome{}, action.ActionNone, false
	}
	out = a.scanner.Lookup(ctx, ev.URL)
	act = a.dispatcher.OnNavigation(ctx, ev.TabID, ev.URL, out)
	a.logger.Debug("navigation scanned",
		zap.Int64("tab_id", ev.TabID),
		zap.Stringer("source", out.Source),
		zap.String("action", string(act)),
	)
	return out, act, true
}

// HandleHover scans a hovered link and marks it when dangerous.
func (a *Agent) HandleHover(ctx context.Context, href string) (engine.Outcome, action.Action) {
	out := a.scanner.Lookup(ctx, href)
	return out, a.dispatcher.OnHover(ctx, href, out)
}

// ScanNow runs a user-requested scan and presents the result.
func (a *Agent) ScanNow(ctx context.Context, rawURL string) (engine.Outcome, action.Action) {
	out := a.scanner.Lookup(ctx, rawURL)
	return out, a.dispatcher.OnManualScan(ctx, rawURL, out)
}

// Report records a user phishing report.
func (a *Agent) Report(ctx context.Context, rawURL string) action.Action {
	return a.dispatcher.OnReport(ctx, rawURL)
}

// HandleMessage serves bridge requests from the page and popup contexts.
// scanUrl answers with the verdict only; counters are left to the caller's
// trigger.
func (a *Agent) HandleMessage(ctx context.Context, req bridge.Request) bridge.Response {
	switch req.Action {
	case bridge.KindScanURL:
		out := a.scanner.Lookup(ctx, req.URL)
		return bridge.Response{Result: out.Verdict, Source: out.Source, Success: out.Verdict != nil}
	case bridge.KindReportPhishing:
		a.Report(ctx, req.URL)
		return bridge.Response{Success: true}
	default:
		a.logger.Warn("unknown bridge message", zap.String("action", string(req.Action)))
		return bridge.Response{Error: fmt.Sprintf("%v: %q", bridge.ErrUnknownKind, req.Action)}
	}
}

// Serve answers bridge requests until ctx is done.
func (a *Agent) Serve(ctx context.Context, b *bridge.Bridge) error {
	return b.Serve(ctx, a)
}

// HandleCommand runs a keyboard command. Opening the popup falls back to
// opening the popup page as a regular tab.
func (a *Agent) HandleCommand(ctx context.Context, command string) error {
	if command != CommandScanCurrentPage {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if a.opener == nil {
		return fmt.Errorf("HandleCommand: no popup opener configured")
	}
	err := a.opener.OpenPopup(ctx)
	if err == nil {
		return nil
	}
	a.logger.Warn("opening popup failed, opening as page", zap.Error(err))
	if err := a.opener.OpenTab(ctx, a.popupPage); err != nil {
		return fmt.Errorf("HandleCommand: %w", err)
	}
	return nil
}

// Install initializes settings as on first install.
func (a *Agent) Install(ctx context.Context) error {
	if err := a.settings.Install(ctx); err != nil {
		return fmt.Errorf("Install: %w", err)
	}
	a.logger.Info("PhishGuard installed")
	return nil
}

// Settings returns the settings store.
func (a *Agent) Settings() *settings.Store {
	return a.settings
}
