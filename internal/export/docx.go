package export

import (
	"fmt"
	"strings"

	"github.com/gingfrederik/docx"
	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/swift/internal/model"
)

// WriteDOCX writes the review report as a Word document.
func WriteDOCX(path string, result *model.BatchResult) error {
	f := docx.NewFile()

	run := f.AddParagraph().AddText("Idea triage report")
	run.Size(20)

	kept, filtered, degraded := result.Counts()
	summary := fmt.Sprintf("Run %s: %d ideas judged, %d kept, %d filtered", result.RunID, len(result.Items), kept, filtered)
	if degraded > 0 {
		summary += fmt.Sprintf(", %d could not be evaluated", degraded)
	}
	run = f.AddParagraph().AddText(summary)
	run.Size(10)
	run.Color("808080")
	f.AddParagraph() // Spacer

	if len(result.Digest) > 0 {
		f.AddParagraph().AddText("TL;DR").Size(16)
		for _, d := range result.Digest {
			f.AddParagraph().AddText("- " + d)
		}
		f.AddParagraph()
	}

	for _, section := range []struct {
		title string
		items []model.ItemResult
	}{
		{"Filtered ideas", result.Filtered()},
		{"Kept ideas", result.Kept()},
	} {
		if len(section.items) == 0 {
			continue
		}
		f.AddParagraph().AddText(section.title).Size(16)
		for _, it := range section.items {
			writeDOCXItem(f, it)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func writeDOCXItem(f *docx.File, it model.ItemResult) {
	f.AddParagraph().AddText(fmt.Sprintf("#%s: %s", it.Idea.ID, it.Idea.Problem)).Size(13)

	meta := "Decision: " + string(it.Verdict.Decision)
	if it.Verdict.Score != nil {
		meta += fmt.Sprintf(" | Score: %d", *it.Verdict.Score)
	}
	if it.DuplicateGroup > 0 {
		meta += fmt.Sprintf(" | Duplicate group: %d", it.DuplicateGroup)
	}
	run := f.AddParagraph().AddText(meta)
	run.Size(10)
	if it.Verdict.Filtered() {
		run.Color("C00000")
	} else {
		run.Color("008000")
	}

	f.AddParagraph().AddText("Solution: " + strings.TrimSpace(it.Idea.Solution))
	for _, para := range strings.Split(it.Verdict.Analysis, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			f.AddParagraph().AddText(para)
		}
	}
	for _, c := range it.Verdict.Citations {
		run := f.AddParagraph().AddText(fmt.Sprintf("%q (%s)", c.Quote, c.URL))
		run.Size(10)
		run.Color("0000FF")
	}
	f.AddParagraph().AddText("--------------------------------------------------")
}
