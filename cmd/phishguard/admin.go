package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/auth"
	"github.com/triage-ai/phishguard/internal/classify"
	"github.com/triage-ai/phishguard/internal/server"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print blocked, scanned and reported counters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := cliLogger(cmd)
		db, st, err := openSettings(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		stats := st.Stats()
		snap := st.Snapshot()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "BLOCKED\tSCANNED\tREPORTS\tLAST PAGE SCORE\t\n")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t\n", stats.Blocked, stats.Scanned, stats.Reports, snap.CurrentPageScore)
		w.Flush()

		fmt.Printf("\nAPI URL: %s  Auto-block: %t  Theme: %s\n", snap.APIURL, snap.AutoBlock, snap.Theme)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the classification service (or a running agent) answers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if target := flagOrConfig(cmd, "agent"); target != "" {
			client, err := server.Dial(target, "")
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			ok, err := client.Serving(ctx)
			if err != nil {
				return err
			}
			return printHealth("agent "+target, ok)
		}

		logger := cliLogger(cmd)
		db, st, err := openSettings(ctx, logger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		client, err := classify.NewClient(classify.Config{BaseURL: st.APIURL}, logger)
		if err != nil {
			return err
		}
		return printHealth(st.APIURL(), client.Health(ctx))
	},
}

func printHealth(target string, ok bool) error {
	if !ok {
		_, _ = color.New(color.FgRed, color.Bold).Print("offline")
		fmt.Printf("  %s\n", target)
		return fmt.Errorf("%s is offline", target)
	}
	_, _ = color.New(color.FgGreen, color.Bold).Print("online")
	fmt.Printf("   %s\n", target)
	return nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Reset counters and enable auto-block, as on a fresh install.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := cliLogger(cmd)
		rt, err := newRuntime(cmd.Context(), consoleHost{out: os.Stdout}, action.DefaultBlockedPage, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.agent.Install(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("PhishGuard installed: counters reset, auto-block on.")
		return nil
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Print the bcrypt hash to configure as token_hash for an API token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashToken(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	healthCmd.Flags().String("agent", "", "gRPC address of a running agent to check instead")
	rootCmd.AddCommand(statsCmd, healthCmd, installCmd, hashTokenCmd)
}
