// Package testutil provides test doubles for code that calls an LLM.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
)

// MockLLMClient is a thread-safe stand-in for *llm.Client.
//
//	mock := &testutil.MockLLMClient{
//	    Responses: []*llm.Response{{Content: `{"tasks": []}`, Model: "deepseek-chat"}},
//	}
type MockLLMClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response // returned in sequence
	Err           error           // takes precedence over Responses
	Unavailable   bool            // makes Available report false
	Block         bool            // Complete waits for ctx to end
	requests      []llm.Request
	responseIndex int
}

// Complete records the request and returns the next configured response.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model", Provider: "test"}, nil
}

// Available reports !Unavailable.
func (m *MockLLMClient) Available(model.Capability) bool {
	return !m.Unavailable
}

// Requests returns the requests seen so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
