// Package locate attributes quoted or cited sentences of a verdict to the
// web sources they came from.
package locate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/swift/internal/model"
)

// MinSimilarity is the lowest fuzzy similarity accepted as a match.
const MinSimilarity = 0.8

const (
	minQuoteWords    = 3
	markerConfidence = 0.5
)

var (
	quoteRe    = regexp.MustCompile(`"([^"\n]+)"|“([^”\n]+)”`)
	markerRe   = regexp.MustCompile(`\[(\d+)\]`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+(?:[.!?]+["”]?)?`)

	spaceBeforePunct = regexp.MustCompile(`\s+([.,;:!?])`)
)

// span is a stretch of answer text that may trace back to a source.
type span struct {
	text    string
	pos     int
	markers []int // 1-based indexes into SearchMeta.Links
}

// LocateSource finds citations for answer. Quoted spans of at least three
// words and sentences carrying [n] markers are matched against passages,
// first as an exact substring, then by fuzzy similarity. A marker that
// matched nothing still cites the link it names. Every citation points at a
// link in meta; spans without a match are dropped.
func LocateSource(answer string, meta model.SearchMeta, passages []model.RankedPassage) []model.Citation {
	allowed := make(map[string]bool, len(meta.Links))
	for _, l := range meta.Links {
		allowed[l] = true
	}

	var usable []model.RankedPassage
	for _, p := range passages {
		if allowed[p.Source] {
			usable = append(usable, p)
		}
	}

	spans := append(quotedSpans(answer), markedSentences(answer)...)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].pos < spans[j].pos })

	seen := make(map[[2]string]bool)
	var out []model.Citation
	add := func(c model.Citation) {
		key := [2]string{c.Quote, c.URL}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, s := range spans {
		if c, ok := matchSpan(s.text, usable); ok {
			add(c)
			continue
		}
		for _, n := range s.markers {
			if n < 1 || n > len(meta.Links) {
				continue
			}
			add(model.Citation{
				Quote:      s.text,
				URL:        meta.Links[n-1],
				Basis:      model.MatchMarker,
				Confidence: markerConfidence,
			})
		}
	}
	return out
}

func quotedSpans(answer string) []span {
	var out []span
	for _, m := range quoteRe.FindAllStringSubmatchIndex(answer, -1) {
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		text := strings.TrimSpace(answer[start:end])
		if len(strings.Fields(text)) < minQuoteWords {
			continue
		}
		out = append(out, span{text: text, pos: start})
	}
	return out
}

// markedSentences returns the sentences that carry [n] markers, with the
// markers removed from the text. A marker standing alone after a sentence
// end belongs to the preceding sentence.
func markedSentences(answer string) []span {
	var out []span
	var prev *span
	for _, loc := range sentenceRe.FindAllStringIndex(answer, -1) {
		raw := answer[loc[0]:loc[1]]
		markers := markerNumbers(raw)
		text := strings.Join(strings.Fields(markerRe.ReplaceAllString(raw, "")), " ")
		text = strings.TrimSpace(strings.Trim(text, "-*•"))
		text = spaceBeforePunct.ReplaceAllString(text, "$1")

		if text == "" || strings.Trim(text, ".!?") == "" {
			if prev != nil && len(markers) > 0 {
				prev.markers = append(prev.markers, markers...)
			}
			continue
		}

		s := span{text: text, pos: loc[0], markers: markers}
		out = append(out, s)
		prev = &out[len(out)-1]
	}

	marked := out[:0]
	for _, s := range out {
		if len(s.markers) > 0 {
			marked = append(marked, s)
		}
	}
	return marked
}

func markerNumbers(s string) []int {
	var nums []int
	for _, m := range markerRe.FindAllStringSubmatch(s, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// matchSpan finds the best passage for text: an exact normalised substring
// wins outright, otherwise the highest fuzzy window at or above
// MinSimilarity.
func matchSpan(text string, passages []model.RankedPassage) (model.Citation, bool) {
	needle := normalize(text)
	if needle == "" {
		return model.Citation{}, false
	}

	for _, p := range passages {
		if strings.Contains(normalize(p.Text), needle) {
			return model.Citation{Quote: text, URL: p.Source, Basis: model.MatchExact, Confidence: 1}, true
		}
	}

	best, bestURL := 0.0, ""
	for _, p := range passages {
		if sim := bestWindow(needle, normalize(p.Text)); sim > best {
			best, bestURL = sim, p.Source
		}
	}
	if best >= MinSimilarity {
		return model.Citation{Quote: text, URL: bestURL, Basis: model.MatchFuzzy, Confidence: best}, true
	}
	return model.Citation{}, false
}

// bestWindow slides a window of the needle's word count over hay and
// returns the highest similarity found.
func bestWindow(needle, hay string) float64 {
	nw := strings.Fields(needle)
	hw := strings.Fields(hay)
	if len(hw) == 0 {
		return 0
	}
	if len(hw) <= len(nw) {
		return levenshtein.Similarity(needle, hay, nil)
	}

	best := 0.0
	for i := 0; i+len(nw) <= len(hw); i++ {
		window := strings.Join(hw[i:i+len(nw)], " ")
		if sim := levenshtein.Similarity(needle, window, nil); sim > best {
			best = sim
		}
	}
	return best
}

// normalize folds text for comparison: NFKC, lower case, punctuation as
// spaces, collapsed whitespace.
func normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
