// Package main provides the e2e runner that exercises a running taskhub
// server over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg           Config
		outputJSON    bool
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "e2e [scenario]",
		Short: "Run taskhub end-to-end scenarios",
		Long: `Run end-to-end scenarios against a running, seeded taskhub server.

Examples:
  e2e                              # Run all scenarios
  e2e project-lifecycle            # Run one scenario
  e2e --nats nats://localhost:4222 # Also assert published events
  e2e --json                       # Output results as JSON
`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) > 0 {
				name = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), globalTimeout)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd.OutOrStdout(), name, &cfg, outputJSON)
		},
	}

	cmd.Flags().StringVar(&cfg.BaseURL, "url", DefaultBaseURL, "Taskhub base URL")
	cmd.Flags().StringVar(&cfg.NATSURL, "nats", "", "NATS URL for event assertions (optional)")
	cmd.Flags().StringVar(&cfg.ManagerEmail, "email", DefaultManagerEmail, "Project manager account")
	cmd.Flags().StringVar(&cfg.ManagerPassword, "password", DefaultManagerPassword, "Project manager password")
	cmd.Flags().DurationVar(&cfg.RequestTimeout, "timeout", 45*time.Second, "Per-request timeout")
	cmd.Flags().DurationVar(&cfg.EventTimeout, "event-timeout", 5*time.Second, "How long to wait for an event")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 5*time.Minute, "Timeout for the whole run")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available scenarios:")
			for _, s := range allScenarios(&cfg) {
				fmt.Fprintf(out, "  %-18s %s\n", s.Name(), s.Description())
			}
		},
	})
	return cmd
}

func run(ctx context.Context, out io.Writer, name string, cfg *Config, outputJSON bool) error {
	all := allScenarios(cfg)
	toRun := all
	if name != "all" {
		toRun = nil
		for _, s := range all {
			if s.Name() == name {
				toRun = []Scenario{s}
			}
		}
		if toRun == nil {
			return fmt.Errorf("unknown scenario: %s", name)
		}
	}

	log := out
	if outputJSON {
		log = io.Discard
	}

	results := make([]*Result, 0, len(toRun))
	failed := 0
	for _, s := range toRun {
		if ctx.Err() != nil {
			fmt.Fprintln(log, "\nRun interrupted")
			break
		}
		res := runScenario(ctx, log, s)
		results = append(results, res)
		if !res.Success {
			failed++
		}
	}

	if outputJSON {
		writeJSONResults(out, results)
	} else {
		writeSummary(out, results)
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

func runScenario(ctx context.Context, log io.Writer, s Scenario) *Result {
	fmt.Fprintf(log, "\n=== %s: %s\n", s.Name(), s.Description())

	if err := s.Setup(ctx); err != nil {
		res := NewResult(s.Name())
		res.AddError(fmt.Sprintf("setup failed: %v", err))
		res.Complete()
		fmt.Fprintf(log, "setup FAILED: %v\n", err)
		return res
	}

	res, err := s.Execute(ctx)
	if err != nil {
		res = NewResult(s.Name())
		res.AddError(fmt.Sprintf("execution error: %v", err))
		res.Complete()
	}

	if err := s.Teardown(ctx); err != nil {
		res.AddWarning(fmt.Sprintf("teardown failed: %v", err))
	}

	for _, st := range res.Stages {
		mark := "ok  "
		if !st.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(log, "  %s %s (%dms)\n", mark, st.Name, st.Duration.Milliseconds())
		if st.Error != "" {
			fmt.Fprintf(log, "       %s\n", st.Error)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(log, "  warn %s\n", w)
	}
	return res
}

func writeJSONResults(out io.Writer, results []*Result) {
	report := struct {
		Timestamp time.Time `json:"timestamp"`
		Results   []*Result `json:"results"`
		Passed    int       `json:"passed"`
		Failed    int       `json:"failed"`
	}{Timestamp: time.Now(), Results: results}
	for _, r := range results {
		if r.Success {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding results: %v\n", err)
	}
}

func writeSummary(out io.Writer, results []*Result) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 60))
	passed := 0
	for _, r := range results {
		status := "PASSED"
		if r.Success {
			passed++
		} else {
			status = "FAILED"
		}
		fmt.Fprintf(out, "  %s  %s (%dms)\n", status, r.ScenarioName, r.Duration.Milliseconds())
		if !r.Success && r.Error != "" {
			msg := r.Error
			if len(msg) > 80 {
				msg = msg[:77] + "..."
			}
			fmt.Fprintf(out, "          %s\n", msg)
		}
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "  Total: %d | Passed: %d | Failed: %d\n", len(results), passed, len(results)-passed)
}
