// Package llm provides a provider-agnostic LLM client with retry and
// fallback support. It resolves capabilities through model.Registry.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/taskhub/model"
)

// maxResponseSize limits the LLM response body.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	keyLookup   func(string) string

	// callStore optionally records every call. Nil disables recording.
	callStore *CallStore
}

// Message is a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Request defines an LLM completion request.
type Request struct {
	// Capability selects the endpoint chain ("planning", "writing").
	Capability model.Capability

	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage is the token consumption of one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID identifies the call in the call store.
	RequestID string

	Content string

	// Model is the model that answered.
	Model string

	// Provider is the provider of the endpoint that answered.
	Provider string

	Usage        TokenUsage
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithCallStore records every call in store.
func WithCallStore(store *CallStore) ClientOption {
	return func(client *Client) {
		client.callStore = store
	}
}

// WithKeyLookup replaces os.Getenv as the source of API keys.
func WithKeyLookup(lookup func(string) string) ClientOption {
	return func(client *Client) {
		client.keyLookup = lookup
	}
}

// NewClient creates a new LLM client with the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:    slog.Default(),
		keyLookup: os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiKey resolves the key for an endpoint. ok is false when the provider
// needs a key and none is set.
func (c *Client) apiKey(b Backend, ep *model.EndpointConfig) (key string, ok bool) {
	env := ep.APIKeyEnv
	if env == "" {
		env = b.APIKeyEnv()
	}
	if env == "" {
		return "", true
	}
	key = c.keyLookup(env)
	return key, key != ""
}

// Available reports whether any endpoint for the capability has a
// registered provider and credentials.
func (c *Client) Available(capability model.Capability) bool {
	for _, name := range c.registry.GetFallbackChain(capability) {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			continue
		}
		b := GetProvider(ep.Provider)
		if b == nil {
			continue
		}
		if _, ok := c.apiKey(b, ep); ok {
			return true
		}
	}
	return false
}

// Complete sends a completion request through the capability's fallback
// chain. Endpoints with an open circuit are skipped unless every endpoint is
// down, and endpoints without credentials are always skipped.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	rec := &CallRecord{
		RequestID:     uuid.New().String(),
		TraceID:       GetTraceContext(ctx).TraceID,
		Capability:    req.Capability.String(),
		MessagesCount: len(req.Messages),
		StartedAt:     time.Now(),
	}

	chain := c.registry.GetAvailableFallbackChain(req.Capability)
	var lastErr error
	tried := 0

	for _, name := range chain {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", name)
			continue
		}
		backend := GetProvider(ep.Provider)
		if backend == nil {
			c.logger.Warn("Unknown provider, skipping", "model", name, "provider", ep.Provider)
			continue
		}
		key, ok := c.apiKey(backend, ep)
		if !ok {
			c.logger.Debug("No API key for endpoint, skipping", "model", name, "provider", ep.Provider)
			continue
		}

		tried++
		resp, attempts, err := c.tryEndpoint(ctx, backend, ep, name, key, req)
		rec.Retries += attempts - 1
		if err == nil {
			resp.RequestID = rec.RequestID
			resp.Provider = ep.Provider
			rec.Model = resp.Model
			rec.Provider = ep.Provider
			rec.ResponsePreview = preview(resp.Content)
			rec.PromptTokens = resp.Usage.PromptTokens
			rec.CompletionTokens = resp.Usage.CompletionTokens
			rec.TotalTokens = resp.Usage.TotalTokens
			rec.FinishReason = resp.FinishReason
			c.recordCall(ctx, rec)
			return resp, nil
		}

		rec.FallbacksUsed = append(rec.FallbacksUsed, name)
		lastErr = err
		c.logger.Warn("Endpoint failed, trying fallback",
			"model", name,
			"provider", ep.Provider,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if tried == 0 {
		lastErr = ErrNoCredentials
	}
	rec.Error = lastErr.Error()
	c.recordCall(ctx, rec)
	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// recordCall stores a call record when a store is configured. Failures are
// logged and never affect the call.
func (c *Client) recordCall(ctx context.Context, rec *CallRecord) {
	if c.callStore == nil {
		return
	}
	rec.CompletedAt = time.Now()
	rec.DurationMs = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()

	// The request context may already be cancelled by the time we record.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.callStore.Store(storeCtx, rec); err != nil {
		c.logger.Warn("Failed to record LLM call",
			"request_id", rec.RequestID,
			"trace_id", rec.TraceID,
			"error", err)
	}
}

// tryEndpoint attempts a request with retries and returns the attempt count.
func (c *Client) tryEndpoint(ctx context.Context, b Backend, ep *model.EndpointConfig, name, key string, req Request) (*Response, int, error) {
	var lastErr error
	attempts := max(c.retryConfig.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.doRequest(ctx, b, ep, key, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(name)
			return resp, attempt, nil
		}
		lastErr = err

		// Fatal errors point at configuration, not endpoint health.
		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < attempts {
			wait := c.retryConfig.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", wait,
				"error", err)

			select {
			case <-ctx.Done():
				c.registry.MarkEndpointFailure(name)
				return nil, attempt, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	c.registry.MarkEndpointFailure(name)
	return nil, attempts, lastErr
}

// doRequest executes a single request against an endpoint.
func (c *Client) doRequest(ctx context.Context, b Backend, ep *model.EndpointConfig, key string, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = ep.MaxTokens
	}
	req.MaxTokens = maxTokens

	switch p := b.(type) {
	case SDKProvider:
		return p.Complete(ctx, ep, key, req)
	case Provider:
		return c.doHTTPRequest(ctx, p, ep, key, req)
	default:
		return nil, NewFatalError(fmt.Errorf("provider %s has no transport", ep.Provider))
	}
}

func (c *Client) doHTTPRequest(ctx context.Context, p Provider, ep *model.EndpointConfig, key string, req Request) (*Response, error) {
	url := p.BuildURL(ep.URL)

	body, err := p.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.SetHeaders(httpReq, key)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := p.ParseResponse(respBody, ep.Model)
	if err != nil {
		return nil, NewTransientError(err)
	}
	return resp, nil
}
