package action

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errNoPopup = errors.New("no popup surface")

// LogHost is a headless host: it logs the side effects it is asked to perform.
// Used when the agent runs as a daemon with no browser attached.
type LogHost struct {
	logger *zap.Logger
}

// NewLogHost creates a LogHost writing to logger.
func NewLogHost(logger *zap.Logger) *LogHost {
	return &LogHost{logger: logger}
}

func (h *LogHost) Redirect(_ context.Context, tabID int64, target string) error {
	h.logger.Info("tab redirected", zap.Int64("tab_id", tabID), zap.String("target", target))
	return nil
}

func (h *LogHost) MarkDangerous(_ context.Context, href, title string) error {
	h.logger.Info("link marked", zap.String("href", href), zap.String("title", title))
	return nil
}

func (h *LogHost) Present(_ context.Context, d Display) {
	fields := []zap.Field{
		zap.String("url", d.URL),
		zap.String("status", d.Status),
		zap.String("message", d.Message),
	}
	if d.Score != nil {
		fields = append(fields, zap.Int("score", *d.Score))
	}
	h.logger.Info("scan result", fields...)
}

// OpenPopup has no popup surface to open headless; the caller falls back to
// OpenTab.
func (h *LogHost) OpenPopup(context.Context) error {
	return errNoPopup
}

func (h *LogHost) OpenTab(_ context.Context, url string) error {
	h.logger.Info("tab opened", zap.String("url", url))
	return nil
}
