// Package model holds the data types shared by every stage of an idea
// triage run: the ideas themselves, evaluation settings, web evidence,
// verdicts, and the batch result.
package model

import (
	"fmt"
	"strings"
)

// Idea is one problem/solution pair loaded from the input table.
// Ideas are never mutated after ingest.
type Idea struct {
	ID       string `json:"id"`
	Row      int    `json:"row"` // 0-based position in the input table
	Problem  string `json:"problem"`
	Solution string `json:"solution"`

	// Extra carries the remaining input columns so exports can reproduce
	// the original table.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasProblem reports whether the idea carries any problem text.
func (i Idea) HasProblem() bool {
	return strings.TrimSpace(i.Problem) != ""
}

// Query is the text used for web search and embedding retrieval.
func (i Idea) Query() string {
	return fmt.Sprintf("Problem: %s. Solution: %s", strings.TrimSpace(i.Problem), strings.TrimSpace(i.Solution))
}

// Strictness selects how aggressively ideas are filtered.
type Strictness string

const (
	StrictnessLoose  Strictness = "loose"
	StrictnessNormal Strictness = "normal"
	StrictnessStrict Strictness = "strict"
)

var strictnessInstructions = map[Strictness]string{
	StrictnessLoose:  "Be a loose filter where most ideas will pass.",
	StrictnessNormal: "",
	StrictnessStrict: "Be an extremely strict filter where very little ideas will pass and you are " +
		"super critical of all aspects of an idea such the business model and whether an " +
		"existing solution already exists.",
}

// ParseStrictness accepts "loose", "normal", "strict" in any case, with or
// without a trailing " filter". Empty input means normal.
func ParseStrictness(s string) (Strictness, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimSuffix(v, "filter"))
	if v == "" {
		return StrictnessNormal, nil
	}
	st := Strictness(v)
	if _, ok := strictnessInstructions[st]; !ok {
		return "", NewError(KindValidation, nil, fmt.Sprintf("unknown filter strictness %q (valid: loose, normal, strict)", s))
	}
	return st, nil
}

// Instruction returns the fixed prompt fragment for the level. Normal adds
// nothing to the evaluator profile.
func (s Strictness) Instruction() string {
	if text, ok := strictnessInstructions[s]; ok {
		return text
	}
	return ""
}

// MaxTokensLimit bounds the judgment response budget a caller may request.
const MaxTokensLimit = 1000

// EvaluationConfig is the caller-supplied evaluation setup for one run.
type EvaluationConfig struct {
	Strictness   Strictness `json:"strictness" yaml:"strictness"`
	Criteria     string     `json:"criteria" yaml:"criteria"`
	OutputFormat string     `json:"output_format" yaml:"output_format"`
	Profile      string     `json:"profile" yaml:"profile"`
	MaxTokens    int        `json:"max_tokens" yaml:"max_tokens"`
	// Language forces the answer language; empty means use the language
	// detected from the search query.
	Language string `json:"language,omitempty" yaml:"language"`
}

// Validate checks the caller-supplied values.
func (c EvaluationConfig) Validate() error {
	if _, err := ParseStrictness(string(c.Strictness)); err != nil {
		return err
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxTokensLimit {
		return NewError(KindValidation, nil, fmt.Sprintf("max tokens must be between 1 and %d, got %d", MaxTokensLimit, c.MaxTokens))
	}
	return nil
}
