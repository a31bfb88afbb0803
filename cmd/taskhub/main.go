// Package main provides the taskhub binary entry point.
// Taskhub is a project and task management API with an AI planning
// assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/taskhub/llm/providers"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "taskhub"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the persistent options shared by every sub-command.
type flags struct {
	configPath string
	envFile    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Project and task management API",
		Long: `Taskhub serves a REST API for projects, tasks, comments and an AI
assistant that breaks project descriptions down into tasks.

Configuration is read from ~/.config/taskhub/config.yaml, the nearest
taskhub.yaml, a .env file and the environment, in that order.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML); replaces the user and project files")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", "", "Env file to load (default .env when present)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), f)
			},
		},
		seedCmd(&f),
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(f)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

func seedCmd(f *flags) *cobra.Command {
	var skipAccounts bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert default roles, states, categories and demo accounts",
		Long: `Seed is idempotent: records that already exist are left alone.

Demo accounts (admin@test.com, pm@test.com, dev@test.com, viewer@test.com)
are skipped with --skip-accounts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *f, skipAccounts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&skipAccounts, "skip-accounts", false, "Do not create the demo accounts")
	return cmd
}
