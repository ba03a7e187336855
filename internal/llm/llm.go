// Package llm wraps the chat-completion and embedding services used to
// judge ideas and rank evidence.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the interface for chat LLM providers.
type Provider interface {
	Chat(ctx context.Context, messages []Message, maxTokens int) (string, error)
	IsConfigured() bool
	Name() string
}

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Settings selects and configures one backend. APIKey is the resolved key,
// never an environment variable name.
type Settings struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// CreateProvider builds the chat provider named in s. When the preferred
// backend is ollama and the local server is unreachable, fallback (if
// configured) is tried next.
func CreateProvider(s Settings, fallback *Settings) (Provider, error) {
	p, err := newProvider(s)
	if err != nil {
		return nil, err
	}
	if p.IsConfigured() {
		zap.L().Info("using llm provider", zap.String("provider", p.Name()), zap.String("model", s.Model))
		return p, nil
	}

	if fallback != nil {
		zap.L().Warn("llm provider not available, trying fallback",
			zap.String("provider", s.Provider), zap.String("fallback", fallback.Provider))
		fp, err := newProvider(*fallback)
		if err != nil {
			return nil, err
		}
		if fp.IsConfigured() {
			zap.L().Info("using llm provider", zap.String("provider", fp.Name()), zap.String("model", fallback.Model))
			return fp, nil
		}
	}

	return nil, eris.Errorf("llm: no provider available (%s not configured)", s.Provider)
}

func newProvider(s Settings) (Provider, error) {
	switch strings.ToLower(s.Provider) {
	case "openai", "":
		return NewOpenAIProvider(s), nil
	case "ollama":
		return NewOllamaProvider(s)
	case "anthropic", "claude":
		return NewAnthropicProvider(s), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q (valid: openai, ollama, anthropic)", s.Provider)
	}
}

// CreateEmbedder builds the embedding backend named in s.
func CreateEmbedder(s Settings) (Embedder, error) {
	switch strings.ToLower(s.Provider) {
	case "openai", "":
		return NewOpenAIEmbedder(s), nil
	case "ollama":
		return NewOllamaEmbedder(s)
	default:
		return nil, eris.Errorf("llm: unknown embedding provider %q (valid: openai, ollama)", s.Provider)
	}
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
