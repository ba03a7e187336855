package model

import "time"

// Decision is the keep/filter outcome for one idea.
type Decision string

const (
	DecisionKeep   Decision = "Keep"
	DecisionFilter Decision = "Filter"
)

// Verdict is the judgment for one idea.
type Verdict struct {
	Decision   Decision   `json:"decision"`
	Score      *int       `json:"score,omitempty"` // as reported by the model, not clamped
	Rationale  string     `json:"rationale"`
	Conclusion string     `json:"conclusion,omitempty"`
	Analysis   string     `json:"analysis"` // raw response text
	Citations  []Citation `json:"citations,omitempty"`

	// Degraded is set when the judgment could not be obtained and the
	// verdict was filled in by the fail-open policy.
	Degraded bool `json:"degraded,omitempty"`
	// Issues lists non-fatal problems met while producing the verdict
	// (failed search, failed retrieval, unparseable response).
	Issues []string `json:"issues,omitempty"`
}

// Filtered reports whether the idea was removed.
func (v Verdict) Filtered() bool {
	return v.Decision == DecisionFilter
}

// DegradedVerdict builds the verdict recorded when an item could not be
// judged. The decision falls back to Keep and the error is made visible in
// both the rationale and the analysis text.
func DegradedVerdict(err error) Verdict {
	msg := "evaluation failed"
	if err != nil {
		msg = err.Error()
	}
	return Verdict{
		Decision:  DecisionKeep,
		Rationale: msg,
		Analysis:  "Evaluation error: " + msg,
		Degraded:  true,
	}
}

// ItemResult pairs an idea with its verdict.
type ItemResult struct {
	Idea    Idea     `json:"idea"`
	Verdict Verdict  `json:"verdict"`
	Sources []string `json:"sources,omitempty"` // search links used as evidence

	// DuplicateGroup is a positive label shared by near-duplicate ideas, or 0.
	DuplicateGroup int `json:"duplicate_group,omitempty"`
}

// IsFiltered renders the decision the way the result tables show it.
func (r ItemResult) IsFiltered() string {
	return string(r.Verdict.Decision)
}

// BatchResult is the outcome of one run. Items keep input order.
type BatchResult struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Items      []ItemResult `json:"items"`
	Skipped    []int        `json:"skipped,omitempty"` // rows skipped for empty problem text
	Digest     []string     `json:"digest,omitempty"`
}

// All returns every processed item.
func (b *BatchResult) All() []ItemResult {
	return b.Items
}

// Kept returns the items whose decision is Keep.
func (b *BatchResult) Kept() []ItemResult {
	return b.where(DecisionKeep)
}

// Filtered returns the items whose decision is Filter.
func (b *BatchResult) Filtered() []ItemResult {
	return b.where(DecisionFilter)
}

func (b *BatchResult) where(d Decision) []ItemResult {
	var out []ItemResult
	for _, it := range b.Items {
		if it.Verdict.Decision == d {
			out = append(out, it)
		}
	}
	return out
}

// Counts returns kept, filtered and degraded totals.
func (b *BatchResult) Counts() (kept, filtered, degraded int) {
	for _, it := range b.Items {
		if it.Verdict.Filtered() {
			filtered++
		} else {
			kept++
		}
		if it.Verdict.Degraded {
			degraded++
		}
	}
	return kept, filtered, degraded
}
