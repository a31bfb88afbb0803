package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/taskhub/api"
	"github.com/c360studio/taskhub/assistant"
	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/config"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
	"github.com/c360studio/taskhub/seed"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/upload"
)

// App wires together all components of the server.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	natsConn *nats.Conn
	store    *storage.Store
	server   *http.Server
	listener net.Listener
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start opens storage, connects NATS when configured and binds the
// listener. It does not serve requests; call Serve for that.
func (a *App) Start(ctx context.Context) error {
	store, err := storage.Open(a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.store = store

	issuer, err := auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTExpire)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	uploads, err := upload.NewStore(a.cfg.Uploads.Dir, a.cfg.Uploads.URLPrefix)
	if err != nil {
		return fmt.Errorf("upload store: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	clientOpts := []llm.ClientOption{llm.WithLogger(a.logger)}
	if a.cfg.NATS.URL != "" {
		conn, err := events.Connect(a.cfg.NATS.URL, a.logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
		publisher = events.NewNATSPublisher(conn, a.logger)

		if a.cfg.NATS.CallBucket != "" {
			js, err := jetstream.New(conn)
			if err != nil {
				return fmt.Errorf("create JetStream context: %w", err)
			}
			calls, err := llm.OpenCallStore(ctx, js, a.cfg.NATS.CallBucket, a.cfg.NATS.CallTTL, a.logger)
			if err != nil {
				return err
			}
			clientOpts = append(clientOpts, llm.WithCallStore(calls))
		}
	}

	client := llm.NewClient(model.FromConfig(a.cfg.Models), clientOpts...)
	svc := assistant.New(client,
		assistant.WithLogger(a.logger),
		assistant.WithTimeout(a.cfg.AI.Timeout),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := api.New(api.Deps{
		Store:     store,
		Issuer:    issuer,
		Hasher:    auth.Hasher{Cost: a.cfg.Auth.BcryptCost},
		Assistant: svc,
		Uploads:   uploads,
		Events:    publisher,
		Logger:    a.logger,
		Registry:  registry,
	}, api.Options{
		Environment:        a.cfg.Server.Environment,
		ClientOrigins:      a.cfg.Server.ClientOrigins,
		RateLimitMax:       a.cfg.Server.RateLimitMax,
		RateLimitWindow:    a.cfg.Server.RateLimitWindow,
		EnforceTransitions: a.cfg.Workflow.EnforceTransitions,
	})

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if a.cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, a.cfg.Server.MaxConnections)
	}
	a.listener = ln

	a.server = &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}
	a.logger.Info("Server ready",
		"addr", ln.Addr().String(),
		"environment", a.cfg.Server.Environment,
		"llm_available", client.Available(model.CapabilityPlanning),
		"nats", a.natsConn != nil)
	return nil
}

// Addr returns the bound listener address.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve handles requests until the server is shut down.
func (a *App) Serve() error {
	if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	a.logger.Info("Shutting down")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP shutdown incomplete", "error", err)
		}
		cancel()
	} else if a.listener != nil {
		_ = a.listener.Close()
	}

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close database", "error", err)
		}
	}
}

// newLogger returns a text logger whose level can change at runtime.
func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the layered configuration and applies the log level,
// with the --log-level flag taking precedence over config.
func loadConfig(f flags, logger *slog.Logger, level *slog.LevelVar) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(logger)
	loader.ConfigPath = f.configPath
	loader.EnvFile = f.envFile

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyLevel(level, f.logLevel, cfg.Log.Level); err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

func applyLevel(level *slog.LevelVar, flagLevel, cfgLevel string) error {
	name := cfgLevel
	if flagLevel != "" {
		name = flagLevel
	}
	l, err := config.ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

func runServe(ctx context.Context, f flags) error {
	level := new(slog.LevelVar)
	logger := newLogger(os.Stderr, level)
	slog.SetDefault(logger)

	loader, cfg, err := loadConfig(f, logger, level)
	if err != nil {
		return err
	}

	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		app.Shutdown(cfg.Server.ShutdownTimeout)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(app.Serve)
	g.Go(func() error {
		<-gctx.Done()
		app.Shutdown(cfg.Server.ShutdownTimeout)
		return nil
	})
	g.Go(func() error {
		// Only the log level is applied live; other changes need a restart.
		return loader.Watch(gctx, config.DefaultDebounce, func(next *config.Config) {
			if err := applyLevel(level, f.logLevel, next.Log.Level); err != nil {
				logger.Warn("Ignoring log level", "error", err)
			}
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func runMigrate(f flags) error {
	level := new(slog.LevelVar)
	logger := newLogger(os.Stderr, level)
	_, cfg, err := loadConfig(f, logger, level)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.Database.Path, err)
	}
	logger.Info("Database schema up to date", "path", cfg.Database.Path)
	return store.Close()
}

func runSeed(ctx context.Context, f flags, skipAccounts bool, out io.Writer) error {
	level := new(slog.LevelVar)
	logger := newLogger(os.Stderr, level)
	_, cfg, err := loadConfig(f, logger, level)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	res, err := seed.Run(ctx, store, seed.Options{
		SkipAccounts: skipAccounts,
		Hasher:       auth.Hasher{Cost: cfg.Auth.BcryptCost},
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Seeded %d roles, %d states, %d categories, %d users (%d new records)\n",
		len(res.Roles), len(res.States), len(res.Categories), len(res.Users), res.Created)
	if !skipAccounts {
		fmt.Fprintln(out, "Demo accounts:")
		for _, acc := range seed.DefaultAccounts {
			fmt.Fprintf(out, "  %-18s %-10s %s\n", acc.Email, acc.Password, acc.Role)
		}
	}
	return nil
}
