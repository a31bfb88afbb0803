// Package main implements a mock LLM server for local development and
// end-to-end tests of the AI task generator.
//
// It answers OpenAI-compatible /v1/chat/completions requests, so taskhub can
// point its "ollama" or "openai" endpoint at it. Replies come from fixture
// files routed by the request's "model" field:
//
//	mock-llm --fixtures ./fixtures --port 11434
//
// A fixture named "planner.json" (or "mock-planner.json") is returned for
// model "mock-planner". Numbered fixtures ("planner.1.json", "planner.2.json")
// are served in order before the base file, which then repeats.
//
// Models without a fixture get a task plan synthesized from the prompt's
// "Proyecto:" and "Categoría:" lines, unless --strict is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		fixtureDir string
		port       int
		strict     bool
		latency    time.Duration
	)

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "OpenAI-compatible mock LLM serving fixture replies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			if fixtureDir == "" {
				fixtureDir = os.Getenv("MOCK_LLM_FIXTURES")
			}
			var fixtures map[string][]string
			if fixtureDir != "" {
				var err error
				fixtures, err = loadFixtures(fixtureDir)
				if err != nil {
					return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
				}
				for name, seq := range fixtures {
					logger.Info("Loaded fixture", "model", name, "replies", len(seq))
				}
			}
			if strict && len(fixtures) == 0 {
				return errors.New("--strict requires at least one fixture")
			}

			s := newServer(fixtures, logger)
			s.strict = strict
			s.latency = latency
			return serve(cmd.Context(), s, net.JoinHostPort("", strconv.Itoa(port)), logger)
		},
	}

	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory with fixture replies (env MOCK_LLM_FIXTURES)")
	cmd.Flags().IntVar(&port, "port", 11434, "Port to listen on")
	cmd.Flags().BoolVar(&strict, "strict", false, "Return 404 for models without a fixture instead of synthesizing a plan")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every completion")
	return cmd
}

func serve(ctx context.Context, s *server, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock LLM server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
