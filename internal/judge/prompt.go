package judge

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

// DefaultProfile is the evaluator persona used when the caller gives none.
const DefaultProfile = "You are a sustainability expert and professional idea evaluator and filterer. " +
	"You will receive a problem followed by a solution. This filtration system helps concentrate " +
	"human evaluators' time and resources on concepts that are meticulously crafted, well-articulated, " +
	"and hold tangible relevance."

// DefaultOutputFormat asks for the four numbered points ParseVerdict reads.
const DefaultOutputFormat = "In separate lines, mention 1. whether the idea falls under one of the categories: " +
	"sloppy, off-topic (i.e., not sustainability related), unsuitable, or vague (such as the over-generic " +
	"content that prioritizes form over substance, offering generalities instead of specific details). " +
	"Return either (Yes - remove idea) if it falls under one of those categories or (No - keep idea) if it " +
	"does not. 2. a viability score out of 100. 3. concise bullet points supporting whether to keep or " +
	"remove the idea from 1. 4. If applicable, mention if there are existing companies or projects " +
	"implementing the solution, and their progress or traction."

const citationInstruction = "When you rely on a web result, cite it with its [n] marker. " +
	"Put any sentence you take word for word from a web result in double quotes."

const noContext = "No web results are available for this idea."

// FormatReference renders passages as numbered web results. A passage's
// marker is the 1-based position of its source in links, so [n] in the
// answer refers to links[n-1]. Sources missing from links are numbered
// after them.
func FormatReference(passages []model.RankedPassage, links []string) string {
	if len(passages) == 0 {
		return ""
	}

	index := make(map[string]int, len(links))
	for i, l := range links {
		if _, ok := index[l]; !ok {
			index[l] = i + 1
		}
	}
	next := len(links) + 1

	var b strings.Builder
	b.WriteString("Web search results:\n")
	for _, p := range passages {
		n, ok := index[p.Source]
		if !ok {
			n = next
			index[p.Source] = n
			next++
		}
		fmt.Fprintf(&b, "\n[%d] %q\nURL: %s\n", n, strings.TrimSpace(p.Text), p.Source)
	}
	return b.String()
}

// BuildMessages assembles the judgment conversation: the evaluator persona
// with strictness and criteria as the system turn, then the grounding
// context, the idea, the answer language and the output format.
func BuildMessages(query, formattedContext, lang string, cfg model.EvaluationConfig) []llm.Message {
	profile := strings.TrimSpace(cfg.Profile)
	if profile == "" {
		profile = DefaultProfile
	}
	system := []string{profile}
	if s := cfg.Strictness.Instruction(); s != "" {
		system = append(system, s)
	}
	if c := strings.TrimSpace(cfg.Criteria); c != "" {
		system = append(system, "Evaluation criteria: "+c)
	}

	outputFormat := strings.TrimSpace(cfg.OutputFormat)
	if outputFormat == "" {
		outputFormat = DefaultOutputFormat
	}

	grounding := strings.TrimSpace(formattedContext)
	if grounding == "" {
		grounding = noContext
	}

	user := strings.Join([]string{
		grounding,
		query,
		"Answer in " + languageName(lang) + ".",
		outputFormat,
		citationInstruction,
	}, "\n\n")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: strings.Join(system, " ")},
		{Role: llm.RoleUser, Content: user},
	}
}

// languageName turns an ISO 639-1 code into its English name; unknown or
// empty codes read as English.
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil || code == "" {
		return "English"
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return "English"
}
