// Package digest writes the human-facing summaries of a run: the LLM TL;DR
// over kept ideas and the markdown review report.
package digest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

const composePrompt = `You are writing the TL;DR for a batch of sustainability ideas that passed a first screening.

Here are the ideas that were kept, with the evaluator's notes:

%s

Write a TL;DR (3-5 bullet points) that tells a human reviewer which themes dominate, which ideas look strongest and what they should check first. Each bullet is one sentence.

Respond with ONLY this JSON:
{
    "tldr_bullets": [
        "First key takeaway",
        "Second key takeaway",
        "Third key takeaway"
    ]
}`

const (
	maxIdeasInPrompt = 40
	maxNoteChars     = 400
	maxBullets       = 5
)

// Composer writes the TL;DR for the kept ideas of a run.
type Composer struct {
	provider  llm.Provider
	maxTokens int
}

// NewComposer creates a new digest composer.
func NewComposer(provider llm.Provider, maxTokens int) *Composer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Composer{provider: provider, maxTokens: maxTokens}
}

// Compose returns 3-5 TL;DR bullets. Any failure returns no bullets and
// the error; the run itself is unaffected.
func (c *Composer) Compose(ctx context.Context, kept []model.ItemResult) ([]string, error) {
	if len(kept) == 0 {
		return nil, nil
	}
	if c.provider == nil {
		return nil, eris.New("digest: no llm provider")
	}

	prompt := fmt.Sprintf(composePrompt, ideaList(kept))
	text, err := c.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, c.maxTokens)
	if err != nil {
		return nil, eris.Wrap(err, "digest: chat")
	}

	parsed := llm.ParseJSONResponse(text)
	if parsed == nil {
		return nil, eris.New("digest: response is not JSON")
	}
	bullets := llm.GetStrings(parsed, "tldr_bullets")
	if len(bullets) == 0 {
		return nil, eris.New("digest: no bullets in response")
	}
	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}

	zap.L().Info("digest composed", zap.Int("kept", len(kept)), zap.Int("bullets", len(bullets)))
	return bullets, nil
}

func ideaList(kept []model.ItemResult) string {
	var parts []string
	for i, it := range kept {
		if i == maxIdeasInPrompt {
			parts = append(parts, fmt.Sprintf("(%d more ideas omitted)", len(kept)-i))
			break
		}
		note := it.Verdict.Rationale
		if len(note) > maxNoteChars {
			note = note[:maxNoteChars] + "..."
		}
		line := fmt.Sprintf("## Idea %s\nProblem: %s\nSolution: %s", it.Idea.ID,
			strings.TrimSpace(it.Idea.Problem), strings.TrimSpace(it.Idea.Solution))
		if it.Verdict.Score != nil {
			line += fmt.Sprintf("\nScore: %d", *it.Verdict.Score)
		}
		if note != "" {
			line += "\nNotes: " + note
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n\n")
}
