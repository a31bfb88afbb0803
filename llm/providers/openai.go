// Package providers registers the LLM backends Taskhub can talk to.
// Import it for side effects.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/taskhub/llm"
)

// ChatCompletionsProvider speaks the OpenAI chat completions wire format,
// which DeepSeek, OpenAI and Ollama all accept.
type ChatCompletionsProvider struct {
	name       string
	defaultURL string
	keyEnv     string
}

func init() {
	llm.RegisterProvider(NewDeepSeekProvider())
	llm.RegisterProvider(NewOpenAIProvider())
	llm.RegisterProvider(NewOllamaProvider())
}

// NewDeepSeekProvider returns the DeepSeek provider.
func NewDeepSeekProvider() *ChatCompletionsProvider {
	return &ChatCompletionsProvider{name: "deepseek", defaultURL: "https://api.deepseek.com/v1", keyEnv: "DEEPSEEK_API_KEY"}
}

// NewOpenAIProvider returns the OpenAI provider.
func NewOpenAIProvider() *ChatCompletionsProvider {
	return &ChatCompletionsProvider{name: "openai", defaultURL: "https://api.openai.com/v1", keyEnv: "OPENAI_API_KEY"}
}

// NewOllamaProvider returns a keyless provider for local OpenAI-compatible
// servers, including cmd/mock-llm.
func NewOllamaProvider() *ChatCompletionsProvider {
	return &ChatCompletionsProvider{name: "ollama", defaultURL: "http://localhost:11434/v1"}
}

func (p *ChatCompletionsProvider) Name() string { return p.name }

func (p *ChatCompletionsProvider) APIKeyEnv() string { return p.keyEnv }

// BuildURL appends /chat/completions unless the URL already ends with it.
func (p *ChatCompletionsProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.defaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders sets bearer auth when a key is present.
func (p *ChatCompletionsProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody creates the chat completions request body.
func (p *ChatCompletionsProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	req := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse reads the first choice.
func (p *ChatCompletionsProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in %s response", p.name)
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
