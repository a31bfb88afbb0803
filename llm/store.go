package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultCallBucket is the KV bucket holding LLM call records.
const DefaultCallBucket = "TASKHUB_LLM_CALLS"

// responsePreviewLen bounds the response text kept in a record.
const responsePreviewLen = 500

// CallRecord describes one LLM completion, successful or not.
type CallRecord struct {
	RequestID  string `json:"request_id"`
	TraceID    string `json:"trace_id,omitempty"`
	Capability string `json:"capability"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`

	MessagesCount   int    `json:"messages_count"`
	ResponsePreview string `json:"response_preview,omitempty"`

	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	FinishReason     string `json:"finish_reason,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`

	Error         string   `json:"error,omitempty"`
	Retries       int      `json:"retries"`
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// KeyValue is the subset of jetstream.KeyValue the call store writes to.
type KeyValue interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// CallStore persists call records in a NATS KV bucket keyed by request ID.
type CallStore struct {
	kv     KeyValue
	logger *slog.Logger
}

// NewCallStore wraps an existing KV bucket.
func NewCallStore(kv KeyValue, logger *slog.Logger) *CallStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallStore{kv: kv, logger: logger}
}

// OpenCallStore creates or updates the call bucket with the given TTL.
func OpenCallStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration, logger *slog.Logger) (*CallStore, error) {
	if bucket == "" {
		bucket = DefaultCallBucket
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "LLM call records",
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create call bucket %s: %w", bucket, err)
	}
	return NewCallStore(kv, logger), nil
}

// Store writes a record.
func (s *CallStore) Store(ctx context.Context, rec *CallRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}
	if _, err := s.kv.Put(ctx, rec.RequestID, data); err != nil {
		return fmt.Errorf("put call record: %w", err)
	}
	s.logger.Debug("Stored LLM call", "request_id", rec.RequestID, "trace_id", rec.TraceID, "model", rec.Model)
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= responsePreviewLen {
		return s
	}
	return string(r[:responsePreviewLen])
}

// TraceContext correlates LLM calls with the request that caused them.
type TraceContext struct {
	TraceID string
}

type traceContextKey struct{}

// WithTraceContext attaches tc to ctx.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext returns the trace context from ctx, or the zero value.
func GetTraceContext(ctx context.Context) TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(TraceContext)
	return tc
}
