package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

var errNoBrowser = errors.New("no browser attached")

// consoleHost performs the agent's side effects on a terminal.
type consoleHost struct {
	out io.Writer
}

func (h consoleHost) Redirect(_ context.Context, _ int64, target string) error {
	_, err := fmt.Fprintf(h.out, "Blocked, redirecting to %s\n", target)
	return err
}

func (h consoleHost) MarkDangerous(_ context.Context, _ string, title string) error {
	_, err := fmt.Fprintln(h.out, title)
	return err
}

func (h consoleHost) Present(_ context.Context, d action.Display) {
	printDisplay(h.out, d)
}

func (h consoleHost) OpenPopup(context.Context) error { return errNoBrowser }

func (h consoleHost) OpenTab(context.Context, string) error { return errNoBrowser }

func statusColor(status string) *color.Color {
	switch status {
	case "SAFE":
		return color.New(color.FgGreen, color.Bold)
	case "SUSPICIOUS":
		return color.New(color.FgYellow, color.Bold)
	case "REPORTED":
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// printDisplay renders a scan result the way the popup shows it.
func printDisplay(w io.Writer, d action.Display) {
	_, _ = statusColor(d.Status).Fprintf(w, "%-10s", d.Status)
	fmt.Fprintf(w, " %s\n", d.URL)
	if d.Score != nil {
		fmt.Fprintf(w, "  Safety score: %d/100\n", *d.Score)
	}
	if d.Message != "" {
		fmt.Fprintf(w, "  %s\n", d.Message)
	}
}

func printExplanations(w io.Writer, v *engine.Verdict) {
	if v == nil {
		return
	}
	for _, e := range v.Explanations {
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

// cliLogger keeps one-shot commands quiet unless a log level was asked for.
func cliLogger(cmd *cobra.Command) *zap.Logger {
	if cmd.Flags().Changed("log-level") {
		return mustBuildLogger(cmd.Flags().Lookup("log-level").Value.String())
	}
	return zap.NewNop()
}
