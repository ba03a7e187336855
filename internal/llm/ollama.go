package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultOllamaURL = "http://localhost:11434"

func newOllamaClient(baseURL string, timeout time.Duration) (*api.Client, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ollama: invalid base url %q", baseURL)
	}
	return api.NewClient(u, &http.Client{Timeout: timeout}), nil
}

// OllamaProvider is a local Ollama chat provider.
type OllamaProvider struct {
	Model       string
	Temperature float64
	client      *api.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(s Settings) (*OllamaProvider, error) {
	client, err := newOllamaClient(s.BaseURL, timeoutOr(s.Timeout, 120*time.Second))
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{Model: s.Model, Temperature: s.Temperature, client: client}, nil
}

// Name identifies the backend.
func (o *OllamaProvider) Name() string { return "ollama" }

// IsConfigured checks if Ollama is running and the model is pulled.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	list, err := o.client.List(ctx)
	if err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range list.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	zap.L().Warn("ollama model not found", zap.String("model", o.Model))
	return false
}

// Chat sends the conversation to Ollama and returns the full response.
func (o *OllamaProvider) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"num_predict": maxTokens,
			"temperature": o.Temperature,
		},
	}

	var b strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "ollama: chat")
	}
	return b.String(), nil
}

// OllamaEmbedder generates embeddings via the Ollama API.
type OllamaEmbedder struct {
	Model  string
	client *api.Client
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(s Settings) (*OllamaEmbedder, error) {
	client, err := newOllamaClient(s.BaseURL, timeoutOr(s.Timeout, 120*time.Second))
	if err != nil {
		return nil, err
	}
	model := s.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{Model: model, client: client}, nil
}

// Embed generates embeddings for the given texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.Model, Input: texts})
	if err != nil {
		return nil, eris.Wrap(err, "ollama: embed")
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, vec := range resp.Embeddings {
		v := make([]float64, len(vec))
		for j, x := range vec {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}
