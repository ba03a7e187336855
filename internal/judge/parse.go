package judge

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

var (
	markerRe  = regexp.MustCompile(`(?i)\b(yes|remove)\b`)
	pointRe   = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?(\d+)[.)](?:\*\*)?[ \t]*`)
	intRe     = regexp.MustCompile(`-?\d+`)
	outOf100  = regexp.MustCompile(`(?i)(-?\d+)\s*(?:/\s*100|out of 100|%)`)
	scoreWord = regexp.MustCompile(`(?i)score\D{0,20}?(-?\d+)`)
	outOfText = regexp.MustCompile(`(?i)\bout of 100\b`)
	rangeHint = regexp.MustCompile(`(?i)\(?\b0\s*(?:-|–|to)\s*100\b\)?`)
)

// parseIssue is recorded on verdicts read by the whole-text fallback.
const parseIssue = "parse error: response did not follow the requested layout; decision taken from the whole text"

// ParseVerdict turns an answer into a Verdict. It reads, in order, a JSON
// object with a decision field, the numbered points of the requested
// layout, and finally the whole text. The decision is Filter only when a
// remove marker is present; otherwise FailOpenDecision applies. Scores are
// taken as written.
func ParseVerdict(text string) model.Verdict {
	if v, ok := parseJSON(text); ok {
		v.Analysis = text
		return v
	}
	if v, ok := parsePoints(text); ok {
		v.Analysis = text
		return v
	}

	v := model.Verdict{
		Decision:  markerDecision(text),
		Score:     findScore(text),
		Rationale: strings.TrimSpace(text),
		Analysis:  text,
		Issues:    []string{model.NewError(model.KindParse, nil, parseIssue).Error()},
	}
	return v
}

func markerDecision(s string) model.Decision {
	if markerRe.MatchString(s) {
		return model.DecisionFilter
	}
	return FailOpenDecision
}

func parseJSON(text string) (model.Verdict, bool) {
	m := llm.ParseJSONResponse(text)
	if m == nil {
		return model.Verdict{}, false
	}
	raw, ok := m["decision"]
	if !ok {
		return model.Verdict{}, false
	}

	v := model.Verdict{Decision: FailOpenDecision}
	switch d := raw.(type) {
	case string:
		if markerRe.MatchString(d) || strings.EqualFold(strings.TrimSpace(d), string(model.DecisionFilter)) {
			v.Decision = model.DecisionFilter
		}
	case bool:
		// {"decision": true} reads as "remove: yes"
		if d {
			v.Decision = model.DecisionFilter
		}
	}

	if n, ok := llm.GetInt(m, "score"); ok {
		v.Score = &n
	}
	v.Rationale = llm.GetString(m, "rationale", "")
	if v.Rationale == "" {
		v.Rationale = strings.Join(llm.GetStrings(m, "rationale"), "\n")
	}
	v.Conclusion = llm.GetString(m, "conclusion", "")
	return v, true
}

// parsePoints splits text at "1.", "2.", ... line starts. Numbers must run
// in sequence from 1, so nested lists inside a point stay in that point.
func parsePoints(text string) (model.Verdict, bool) {
	points := splitPoints(text)
	if len(points) == 0 {
		return model.Verdict{}, false
	}

	v := model.Verdict{Decision: markerDecision(points[0])}
	if len(points) > 1 {
		v.Score = firstInt(points[1])
	}
	if len(points) > 2 {
		v.Rationale = points[2]
	}
	if len(points) > 3 {
		v.Conclusion = strings.Join(points[3:], "\n")
	}
	return v, true
}

func splitPoints(text string) []string {
	locs := pointRe.FindAllStringSubmatchIndex(text, -1)
	type cut struct{ start, body int }
	var cuts []cut
	for _, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n != len(cuts)+1 {
			continue
		}
		cuts = append(cuts, cut{start: loc[0], body: loc[1]})
	}

	points := make([]string, len(cuts))
	for i, c := range cuts {
		end := len(text)
		if i+1 < len(cuts) {
			end = cuts[i+1].start
		}
		points[i] = strings.TrimSpace(text[c.body:end])
	}
	return points
}

// stripScale removes scale labels such as "(0-100)" and "out of 100" so
// their digits are not read as the score.
func stripScale(s string) string {
	return outOfText.ReplaceAllString(rangeHint.ReplaceAllString(s, ""), "")
}

func firstInt(s string) *int {
	s = rangeHint.ReplaceAllString(s, "")
	if m := outOf100.FindStringSubmatch(s); m != nil {
		return atoi(m[1])
	}
	s = stripScale(s)
	if m := scoreWord.FindStringSubmatch(s); m != nil {
		return atoi(m[1])
	}
	return atoi(intRe.FindString(s))
}

func findScore(text string) *int {
	text = rangeHint.ReplaceAllString(text, "")
	if m := outOf100.FindStringSubmatch(text); m != nil {
		return atoi(m[1])
	}
	if m := scoreWord.FindStringSubmatch(stripScale(text)); m != nil {
		return atoi(m[1])
	}
	return nil
}

func atoi(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
