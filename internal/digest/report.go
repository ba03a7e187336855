package digest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TobiSchelling/swift/internal/model"
)

// Markdown renders the review report for a run: the TL;DR, then every
// filtered idea, then every kept idea, each with its analysis and sources.
func Markdown(result *model.BatchResult) string {
	kept, filtered, degraded := result.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "# Idea triage report\n\n")
	fmt.Fprintf(&b, "Run `%s`: %d ideas judged, %d kept, %d filtered", result.RunID, len(result.Items), kept, filtered)
	if degraded > 0 {
		fmt.Fprintf(&b, ", %d could not be evaluated", degraded)
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d rows skipped for missing problem text", len(result.Skipped))
	}
	b.WriteString(".\n")

	if len(result.Digest) > 0 {
		b.WriteString("\n## TL;DR\n\n")
		for _, d := range result.Digest {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	var sections []string
	if f := result.Filtered(); len(f) > 0 {
		sections = append(sections, "## Filtered ideas\n\n"+itemSections(f))
	}
	if k := result.Kept(); len(k) > 0 {
		sections = append(sections, "## Kept ideas\n\n"+itemSections(k))
	}
	if len(sections) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(sections, "\n\n---\n\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func itemSections(items []model.ItemResult) string {
	var out []string
	for _, it := range items {
		out = append(out, itemSection(it))
	}
	return strings.Join(out, "\n\n")
}

func itemSection(it model.ItemResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### #%s: %s\n\n", it.Idea.ID, oneLine(it.Idea.Problem, 100))

	meta := []string{"**Decision:** " + string(it.Verdict.Decision)}
	if it.Verdict.Score != nil {
		meta = append(meta, fmt.Sprintf("**Score:** %d", *it.Verdict.Score))
	}
	if it.DuplicateGroup > 0 {
		meta = append(meta, fmt.Sprintf("**Duplicate group:** %d", it.DuplicateGroup))
	}
	if it.Verdict.Degraded {
		meta = append(meta, "**Not evaluated**")
	}
	b.WriteString(strings.Join(meta, " · "))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "**Solution:** %s\n\n", strings.TrimSpace(it.Idea.Solution))
	b.WriteString(strings.TrimSpace(it.Verdict.Analysis))
	b.WriteString("\n")

	if len(it.Verdict.Citations) > 0 {
		b.WriteString("\n**Sources:**\n")
		for _, c := range it.Verdict.Citations {
			fmt.Fprintf(&b, "- [%s](%s): \"%s\"\n", hostOf(c.URL), c.URL, oneLine(c.Quote, 160))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string, max int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return string(r)
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
