package export

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/swift/internal/digest"
	"github.com/TobiSchelling/swift/internal/model"
)

//go:embed templates/report.html
var templateFS embed.FS

var md = goldmark.New()

var reportTemplate = template.Must(
	template.New("report.html").
		Funcs(template.FuncMap{"markdown": RenderMarkdown}).
		ParseFS(templateFS, "templates/report.html"),
)

// WriteHTML renders the review report as a standalone HTML page.
func WriteHTML(w io.Writer, result *model.BatchResult) error {
	kept, filtered, degraded := result.Counts()
	data := map[string]any{
		"RunID":    result.RunID,
		"Kept":     kept,
		"Filtered": filtered,
		"Degraded": degraded,
		"Body":     digest.Markdown(result),
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return eris.Wrap(err, "export: render html")
	}
	return nil
}

// RenderMarkdown converts markdown to HTML, escaping the text if conversion fails.
func RenderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}
