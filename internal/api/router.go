package api

import (
	"context"
	"net/http"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/agent"
	"github.com/triage-ai/phishguard/internal/auth"
	"github.com/triage-ai/phishguard/internal/bridge"
	"github.com/triage-ai/phishguard/internal/chread"
	"github.com/triage-ai/phishguard/internal/settings"
	"go.uber.org/zap"
)

// HealthChecker probes the classification service.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Agent      *agent.Agent
	Dispatcher *action.Dispatcher
	Settings   *settings.Store
	Bridge     *bridge.Bridge // in-page requests; nil disables link scanning on inspect
	Health     HealthChecker
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
	Auth       *auth.Verifier // nil disables bearer auth
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()
	withAuth := deps.authMiddleware

	// Scan triggers
	mux.HandleFunc("POST /v1/scan", withAuth(deps.handleScan))
	mux.HandleFunc("POST /v1/navigate", withAuth(deps.handleNavigate))
	mux.HandleFunc("POST /v1/hover", withAuth(deps.handleHover))
	mux.HandleFunc("POST /v1/report", withAuth(deps.handleReport))
	mux.HandleFunc("POST /v1/page/inspect", withAuth(deps.handleInspect))
	mux.HandleFunc("POST /v1/command", withAuth(deps.handleCommand))

	// Popup state
	mux.HandleFunc("GET /v1/stats", withAuth(deps.handleGetStats))
	mux.HandleFunc("GET /v1/settings", withAuth(deps.handleGetSettings))
	mux.HandleFunc("PATCH /v1/settings", withAuth(deps.handleUpdateSettings))
	mux.HandleFunc("GET /v1/health", withAuth(deps.handleAPIHealth))

	// Scan event trail
	mux.HandleFunc("GET /v1/events", withAuth(deps.handleListEvents))
	mux.HandleFunc("GET /v1/events/summary", withAuth(deps.handleEventSummary))

	// Warning page for blocked navigations (no auth, opened by the browser)
	mux.HandleFunc("GET /blocked", deps.handleBlockedPage)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
