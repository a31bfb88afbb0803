package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskhub/llm"
	_ "github.com/c360studio/taskhub/llm/providers" // register providers
	"github.com/c360studio/taskhub/model"
)

func chatServer(t *testing.T, status int, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error": "boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "deepseek-chat",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testRegistry(primaryURL, fallbackURL string) *model.Registry {
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityPlanning: {Preferred: []string{"primary"}, Fallback: []string{"secondary"}},
		},
		map[string]*model.EndpointConfig{
			"primary":   {Provider: "deepseek", URL: primaryURL, Model: "deepseek-chat"},
			"secondary": {Provider: "openai", URL: fallbackURL, Model: "gpt-4o-mini"},
		},
	)
}

func keys(m map[string]string) llm.ClientOption {
	return llm.WithKeyLookup(func(name string) string { return m[name] })
}

var fastRetry = llm.WithRetryConfig(llm.RetryConfig{
	MaxAttempts:       2,
	BackoffBase:       time.Millisecond,
	BackoffMultiplier: 2,
	MaxBackoff:        5 * time.Millisecond,
})

func planningRequest() llm.Request {
	return llm.Request{
		Capability: model.CapabilityPlanning,
		Messages:   []llm.Message{{Role: "user", Content: "Hola"}},
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := chatServer(t, http.StatusOK, "Hola, ¿en qué puedo ayudar?", nil)
	client := llm.NewClient(testRegistry(server.URL, ""), keys(map[string]string{"DEEPSEEK_API_KEY": "sk"}))

	resp, err := client.Complete(context.Background(), planningRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué puedo ayudar?", resp.Content)
	assert.Equal(t, "deepseek", resp.Provider)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_FallsBack(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := chatServer(t, http.StatusServiceUnavailable, "", &primaryCalls)
	secondary := chatServer(t, http.StatusOK, "respuesta", nil)

	registry := testRegistry(primary.URL, secondary.URL)
	client := llm.NewClient(registry, fastRetry, keys(map[string]string{
		"DEEPSEEK_API_KEY": "sk",
		"OPENAI_API_KEY":   "sk",
	}))

	resp, err := client.Complete(context.Background(), planningRequest())
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, int32(2), primaryCalls.Load(), "transient errors are retried")

	h := registry.GetEndpointHealth("primary")
	require.NotNil(t, h)
	assert.Equal(t, 1, h.FailureCount)
}

func TestClient_Complete_FatalNotRetried(t *testing.T) {
	var calls atomic.Int32
	primary := chatServer(t, http.StatusUnauthorized, "", &calls)
	client := llm.NewClient(testRegistry(primary.URL, ""), fastRetry, keys(map[string]string{"DEEPSEEK_API_KEY": "bad"}))

	_, err := client.Complete(context.Background(), planningRequest())
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NoCredentials(t *testing.T) {
	var calls atomic.Int32
	server := chatServer(t, http.StatusOK, "x", &calls)
	client := llm.NewClient(testRegistry(server.URL, server.URL), keys(nil))

	assert.False(t, client.Available(model.CapabilityPlanning))
	_, err := client.Complete(context.Background(), planningRequest())
	assert.ErrorIs(t, err, llm.ErrNoCredentials)
	assert.Zero(t, calls.Load(), "endpoints without keys are never called")

	withKey := llm.NewClient(testRegistry(server.URL, ""), keys(map[string]string{"OPENAI_API_KEY": "sk"}))
	assert.True(t, withKey.Available(model.CapabilityPlanning), "fallback endpoint has a key")
}

func TestClient_Validation(t *testing.T) {
	client := llm.NewClient(model.NewDefaultRegistry())
	_, err := client.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	assert.Error(t, err)
	_, err = client.Complete(context.Background(), llm.Request{Capability: model.CapabilityPlanning})
	assert.Error(t, err)
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func TestClient_RecordsCalls(t *testing.T) {
	server := chatServer(t, http.StatusOK, "ok", nil)
	kv := &fakeKV{}
	client := llm.NewClient(testRegistry(server.URL, ""),
		keys(map[string]string{"DEEPSEEK_API_KEY": "sk"}),
		llm.WithCallStore(llm.NewCallStore(kv, nil)))

	ctx := llm.WithTraceContext(context.Background(), llm.TraceContext{TraceID: "req-42"})
	resp, err := client.Complete(ctx, planningRequest())
	require.NoError(t, err)

	raw, ok := kv.data[resp.RequestID]
	require.True(t, ok)
	var rec llm.CallRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "req-42", rec.TraceID)
	assert.Equal(t, "planning", rec.Capability)
	assert.Equal(t, "deepseek", rec.Provider)
	assert.Equal(t, 18, rec.TotalTokens)
	assert.Equal(t, "ok", rec.ResponsePreview)

	// Recording failures never fail the call.
	kv.err = errors.New("kv down")
	_, err = client.Complete(ctx, planningRequest())
	assert.NoError(t, err)
}
