package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider is an OpenAI chat-completions provider.
type OpenAIProvider struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	client      *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(s Settings) *OpenAIProvider {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		Model:       s.Model,
		APIKey:      s.APIKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Temperature: s.Temperature,
		client:      &http.Client{Timeout: timeoutOr(s.Timeout, 120*time.Second)},
	}
}

// Name identifies the backend.
func (o *OpenAIProvider) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Chat sends the conversation to OpenAI and returns the first choice.
func (o *OpenAIProvider) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", eris.New("openai: API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": o.Temperature,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/chat/completions", o.APIKey, body, &result); err != nil {
		return "", eris.Wrap(err, "openai: chat")
	}

	if len(result.Choices) == 0 {
		return "", eris.New("openai: no choices in response")
	}

	// Prefer a choice that carries legacy completion text, then fall back to
	// the first message content.
	for _, c := range result.Choices {
		if c.Text != "" {
			return c.Text, nil
		}
	}
	return result.Choices[0].Message.Content, nil
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIEmbedder creates a new OpenAI embedder.
func NewOpenAIEmbedder(s Settings) *OpenAIEmbedder {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := s.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		Model:   model,
		APIKey:  s.APIKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeoutOr(s.Timeout, 60*time.Second)},
	}
}

// Embed generates embeddings for the given texts, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.APIKey == "" {
		return nil, eris.New("openai: API key not configured")
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	body := map[string]any{"model": e.Model, "input": texts}
	if err := postJSON(ctx, e.client, e.BaseURL+"/embeddings", e.APIKey, body, &result); err != nil {
		return nil, eris.Wrap(err, "openai: embed")
	}

	out := make([][]float64, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, eris.Errorf("openai: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, eris.Errorf("openai: missing embedding for input %d", i)
		}
	}
	return out, nil
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshaling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decoding response")
	}
	return nil
}
