package providers

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/c360studio/taskhub/llm"
	"github.com/c360studio/taskhub/model"
)

// GeminiProvider calls Google Gemini through the GenAI SDK.
type GeminiProvider struct{}

func init() {
	llm.RegisterProvider(NewGeminiProvider())
}

// NewGeminiProvider returns the Gemini provider.
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{}
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) APIKeyEnv() string { return "GEMINI_API_KEY" }

// Complete maps the chat onto a single GenerateContent call. System
// messages become the system instruction. ep.URL, when set, overrides the
// API base URL.
func (g *GeminiProvider) Complete(ctx context.Context, ep *model.EndpointConfig, apiKey string, req llm.Request) (*llm.Response, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if ep.URL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: ep.URL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create gemini client: %w", err))
	}

	contents, system := toGeminiContents(req.Messages)
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, ep.Model, contents, gc)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, llm.NewTransientError(errors.New("empty gemini response"))
	}
	out := &llm.Response{Content: text, Model: ep.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toGeminiContents(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, system
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ClassifyStatus(apiErr.Code, fmt.Errorf("gemini API error (status %d): %s", apiErr.Code, apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llm.ClassifyStatus(apiErrPtr.Code, fmt.Errorf("gemini API error (status %d): %s", apiErrPtr.Code, apiErrPtr.Message))
	}
	return llm.NewTransientError(fmt.Errorf("gemini request failed: %w", err))
}
