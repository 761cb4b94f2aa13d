package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/bridge"
	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

// Caller sends a request to the background context.
type Caller interface {
	Call(ctx context.Context, kind bridge.Kind, rawURL string) (bridge.Response, error)
}

// Hoverer acts on a hovered link's verdict.
type Hoverer interface {
	OnHover(ctx context.Context, href string, out engine.Outcome) action.Action
}

// Page is the in-page context of one loaded document. It only reaches the
// scanner through the bridge.
type Page struct {
	url     string
	caller  Caller
	hoverer Hoverer
	logger  *zap.Logger

	mu      sync.Mutex
	scanned map[string]struct{}
}

// New creates the context for the page at pageURL.
func New(pageURL string, caller Caller, hoverer Hoverer, logger *zap.Logger) *Page {
	return &Page{
		url:     pageURL,
		caller:  caller,
		hoverer: hoverer,
		logger:  logger,
		scanned: make(map[string]struct{}),
	}
}

// Hover scans a link the first time the pointer enters it. Later hovers of
// the same target are ignored for the life of the page, even if the first
// scan failed.
func (p *Page) Hover(ctx context.Context, href string) (action.Action, error) {
	p.mu.Lock()
	if _, ok := p.scanned[href]; ok {
		p.mu.Unlock()
		return action.ActionNone, nil
	}
	p.scanned[href] = struct{}{}
	p.mu.Unlock()

	resp, err := p.caller.Call(ctx, bridge.KindScanURL, href)
	if err != nil {
		p.logger.Warn("hover scan failed", zap.String("href", href), zap.Error(err))
		return action.ActionNone, fmt.Errorf("Hover: %w", err)
	}
	return p.hoverer.OnHover(ctx, href, engine.Outcome{Verdict: resp.Result, Source: resp.Source}), nil
}

// Scanned reports whether href has already been hovered.
func (p *Page) Scanned(href string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.scanned[href]
	return ok
}

// Report sends a phishing report for this page.
func (p *Page) Report(ctx context.Context) error {
	resp, err := p.caller.Call(ctx, bridge.KindReportPhishing, p.url)
	if err != nil {
		return fmt.Errorf("Report: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("Report: %s", resp.Error)
	}
	return nil
}
