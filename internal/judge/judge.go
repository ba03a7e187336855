// Package judge asks the LLM for a keep/filter verdict on an idea and reads
// the decision back out of its answer.
package judge

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

// FailOpenDecision is the decision recorded whenever the answer carries no
// remove marker or no answer could be obtained. Ideas are kept, not dropped.
const FailOpenDecision = model.DecisionKeep

// Engine runs judgment prompts against an LLM provider.
type Engine struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewEngine creates an Engine. timeout bounds each LLM call; zero means no
// extra bound beyond the provider's own.
func NewEngine(provider llm.Provider, timeout time.Duration) *Engine {
	return &Engine{provider: provider, timeout: timeout}
}

// GetAnswer returns the raw verdict text for query. Failures are
// KindInference errors.
func (e *Engine) GetAnswer(ctx context.Context, query, formattedContext, lang string, cfg model.EvaluationConfig) (string, error) {
	if e.provider == nil {
		return "", model.NewError(model.KindInference, nil, "judge: no llm provider")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	messages := BuildMessages(query, formattedContext, lang, cfg)
	text, err := e.provider.Chat(ctx, messages, cfg.MaxTokens)
	if err != nil {
		return "", model.NewError(model.KindInference, err, "judge: chat")
	}
	if strings.TrimSpace(text) == "" {
		return "", model.NewError(model.KindInference, nil, "judge: empty response")
	}

	zap.L().Debug("judgment received", zap.String("provider", e.provider.Name()), zap.Int("chars", len(text)))
	return text, nil
}
