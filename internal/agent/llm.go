package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/google"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openaicompat"
)

const (
	maxRetries    = 3
	initBackoff   = time.Second
	maxBackoff    = 20 * time.Second
	backoffFactor = 2
)

// Message is one entry of a model conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDefinition is the model-facing description of a tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a single model call.
type ChatRequest struct {
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// ChatResponse is the model's reply to a ChatRequest.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is a chat-capable language model.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderFactory resolves a model name to a Provider.
type ProviderFactory interface {
	Provider(ctx context.Context, model string) (Provider, error)
}

// LLMConfig holds language-model credentials.
type LLMConfig struct {
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	BaseURL      string
	Provider     string
	MaxTokens    int
}

// FantasyFactory builds fantasy-backed providers per model name.
type FantasyFactory struct {
	cfg LLMConfig
}

// NewFantasyFactory creates a ProviderFactory from credentials.
func NewFantasyFactory(cfg LLMConfig) *FantasyFactory {
	return &FantasyFactory{cfg: cfg}
}

// Provider implements ProviderFactory.
func (f *FantasyFactory) Provider(ctx context.Context, model string) (Provider, error) {
	name := f.cfg.Provider
	if name == "" {
		name = InferProvider(model)
	}
	if name == "" && f.cfg.BaseURL != "" {
		name = "openai-compat"
	}
	if name == "" {
		return nil, fmt.Errorf("cannot determine provider for model %q; set LLM_PROVIDER", model)
	}

	fp, err := newFantasyProvider(name, f.apiKey(name), f.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	lm, err := fp.LanguageModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to get model %s: %w", model, err)
	}
	return &FantasyAdapter{model: lm, maxTokens: f.cfg.MaxTokens}, nil
}

func (f *FantasyFactory) apiKey(provider string) string {
	switch provider {
	case "anthropic":
		return f.cfg.AnthropicKey
	case "google":
		return f.cfg.GoogleKey
	default:
		return f.cfg.OpenAIKey
	}
}

func newFantasyProvider(name, apiKey, baseURL string) (fantasy.Provider, error) {
	switch name {
	case "openai":
		if baseURL != "" {
			return openaicompat.New(
				openaicompat.WithBaseURL(baseURL),
				openaicompat.WithAPIKey(apiKey),
				openaicompat.WithName("openai"),
			)
		}
		return openai.New(openai.WithAPIKey(apiKey))
	case "anthropic":
		return anthropic.New(anthropic.WithAPIKey(apiKey))
	case "google":
		return google.New(google.WithGeminiAPIKey(apiKey))
	case "openai-compat":
		if baseURL == "" {
			return nil, fmt.Errorf("LLM_BASE_URL is required for provider %s", name)
		}
		return openaicompat.New(
			openaicompat.WithBaseURL(baseURL),
			openaicompat.WithAPIKey(apiKey),
			openaicompat.WithName(name),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// InferProvider returns the provider name for a model, or "" when unknown.
func InferProvider(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "chatgpt"):
		return "openai"
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "gemma"):
		return "google"
	}
	return ""
}

// FantasyAdapter adapts a fantasy.LanguageModel to Provider.
type FantasyAdapter struct {
	model     fantasy.LanguageModel
	maxTokens int
}

// Chat implements Provider.
func (a *FantasyAdapter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var prompt fantasy.Prompt
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			prompt = append(prompt, fantasy.NewSystemMessage(m.Content))
		case "user":
			prompt = append(prompt, fantasy.NewUserMessage(m.Content))
		case "assistant":
			var parts []fantasy.MessagePart
			if m.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: tc.ID,
					ToolName:   tc.Name,
					Input:      string(args),
				})
			}
			prompt = append(prompt, fantasy.Message{Role: fantasy.MessageRoleAssistant, Content: parts})
		case "tool":
			prompt = append(prompt, fantasy.Message{
				Role: fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{
					fantasy.ToolResultPart{
						ToolCallID: m.ToolCallID,
						Output:     fantasy.ToolResultOutputContentText{Text: m.Content},
					},
				},
			})
		}
	}

	var tools []fantasy.Tool
	for _, t := range req.Tools {
		tools = append(tools, fantasy.FunctionTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	maxTokens := int64(a.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	call := fantasy.Call{Prompt: prompt, Tools: tools}
	if maxTokens > 0 {
		call.MaxOutputTokens = &maxTokens
	}

	resp, err := a.generate(ctx, call)
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{
		StopReason:   string(resp.FinishReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        a.model.Model(),
	}
	for _, content := range resp.Content {
		switch c := content.(type) {
		case *fantasy.TextContent:
			result.Content += c.Text
		case fantasy.TextContent:
			result.Content += c.Text
		case *fantasy.ToolCallContent:
			result.ToolCalls = append(result.ToolCalls, toolCall(c.ToolCallID, c.ToolName, c.Input))
		case fantasy.ToolCallContent:
			result.ToolCalls = append(result.ToolCalls, toolCall(c.ToolCallID, c.ToolName, c.Input))
		}
	}
	return result, nil
}

func (a *FantasyAdapter) generate(ctx context.Context, call fantasy.Call) (*fantasy.Response, error) {
	backoff := initBackoff
	for attempt := 0; ; attempt++ {
		resp, err := a.model.Generate(ctx, call)
		if err == nil {
			return resp, nil
		}
		if !isRetryableError(err) {
			return nil, fmt.Errorf("generate failed: %w", err)
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("generate failed after %d retries: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*backoffFactor, maxBackoff)
	}
}

func toolCall(id, name, input string) ToolCall {
	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil || args == nil {
		args = map[string]any{}
	}
	return ToolCall{ID: id, Name: name, Args: args}
}

// isRetryableError reports rate limits and transient 5xx failures.
func isRetryableError(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "too many requests", "429", "overloaded",
		"500", "502", "503", "504", "service unavailable", "gateway timeout",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
