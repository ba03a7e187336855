package llm

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// AnthropicProvider is a Claude chat provider backed by the official SDK.
type AnthropicProvider struct {
	Model       string
	Temperature float64
	apiKey      string
	client      sdk.Client
}

// NewAnthropicProvider creates a new Anthropic provider. Extra request
// options are appended after the key and base URL.
func NewAnthropicProvider(s Settings, opts ...option.RequestOption) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithRequestTimeout(timeoutOr(s.Timeout, 120*time.Second)),
	}
	if s.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := s.Model
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	return &AnthropicProvider{
		Model:       model,
		Temperature: s.Temperature,
		apiKey:      s.APIKey,
		client:      sdk.NewClient(reqOpts...),
	}
}

// Name identifies the backend.
func (a *AnthropicProvider) Name() string { return "anthropic" }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.apiKey != ""
}

// Chat sends the conversation to the Messages API. System turns are merged
// into the system prompt.
func (a *AnthropicProvider) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if a.apiKey == "" {
		return "", eris.New("anthropic: API key not configured")
	}

	var system []sdk.TextBlockParam
	var turns []sdk.MessageParam
	for _, m := range messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			turns = append(turns, sdk.NewAssistantMessage(block))
		default:
			turns = append(turns, sdk.NewUserMessage(block))
		}
	}
	if len(turns) == 0 {
		return "", eris.New("anthropic: no user message")
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(a.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    turns,
		Temperature: sdk.Float(a.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
