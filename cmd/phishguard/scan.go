package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/server"
)

const scanFailedMessage = "Failed to scan URL. Check API connection."

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a URL, in-process or through a running agent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if target := flagOrConfig(cmd, "agent"); target != "" {
			return remoteScan(ctx, target, flagOrConfig(cmd, "token"), args[0])
		}

		logger := cliLogger(cmd)
		defer logger.Sync() //nolint:errcheck // best-effort flush

		rt, err := newRuntime(ctx, consoleHost{out: os.Stdout}, action.DefaultBlockedPage, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		out, act := rt.agent.ScanNow(ctx, args[0])
		printExplanations(os.Stdout, out.Verdict)
		if act == action.ActionError {
			return fmt.Errorf("scan failed")
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <url>",
	Short: "Report a URL as phishing.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if target := flagOrConfig(cmd, "agent"); target != "" {
			client, err := server.Dial(target, flagOrConfig(cmd, "token"))
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			res, err := client.Report(ctx, args[0])
			if err != nil {
				return err
			}
			printDisplay(os.Stdout, action.Display{URL: args[0], Status: "REPORTED", Message: res.Message})
			return nil
		}

		logger := cliLogger(cmd)
		defer logger.Sync() //nolint:errcheck // best-effort flush

		rt, err := newRuntime(ctx, consoleHost{out: os.Stdout}, action.DefaultBlockedPage, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.agent.Report(ctx, args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{scanCmd, reportCmd} {
		c.Flags().String("agent", "", "gRPC address of a running agent (default: scan in-process)")
		c.Flags().String("token", "", "API token for the agent")
		rootCmd.AddCommand(c)
	}
}

// flagOrConfig prefers an explicit flag and falls back to config or
// PHISHGUARD_* env.
func flagOrConfig(cmd *cobra.Command, name string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return viper.GetString(configKey(name))
}

// remoteScan asks a running agent to scan rawURL.
func remoteScan(ctx context.Context, target, token, rawURL string) error {
	client, err := server.Dial(target, token)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := client.Scan(ctx, server.ScanRequest{URL: rawURL, Trigger: string(action.TriggerManual)})
	if err != nil {
		return err
	}
	printDisplay(os.Stdout, resultDisplay(res))
	printExplanations(os.Stdout, res.Verdict)
	if res.Verdict == nil {
		return fmt.Errorf("scan failed")
	}
	return nil
}

// resultDisplay renders a remote scan result like a local manual scan.
func resultDisplay(res *server.ScanResult) action.Display {
	if res.Verdict == nil {
		return action.Display{URL: res.URL, Status: "ERROR", Message: scanFailedMessage}
	}
	score := res.Verdict.SafetyScore
	return action.Display{
		URL:     res.URL,
		Score:   &score,
		Status:  action.Status(res.Verdict.RiskLevel),
		Message: "Scan complete: " + res.Verdict.Vibe,
	}
}
