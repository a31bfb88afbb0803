// Package assistant implements Taskhub's AI features: task generation,
// project analysis, time estimation, summaries and improvement suggestions.
//
// Task generation always answers. When no endpoint is configured, the
// provider fails, or the reply cannot be parsed, a fixed task list is
// returned instead.
package assistant

import (
	"context"
	"log/slog"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
)

// DefaultTimeout bounds one generation request.
const DefaultTimeout = 30 * time.Second

// LLM is the completion client the assistant needs. *llm.Client satisfies it.
type LLM interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Available(capability model.Capability) bool
}

// Service runs the AI features.
type Service struct {
	llm       LLM
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	converter *md.Converter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. client may be nil, in which case every
// generation uses the fallback tasks.
func New(client LLM, opts ...Option) *Service {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	s := &Service{
		llm:       client,
		logger:    slog.Default(),
		timeout:   DefaultTimeout,
		now:       time.Now,
		converter: converter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) available(c model.Capability) bool {
	return s.llm != nil && s.llm.Available(c)
}
