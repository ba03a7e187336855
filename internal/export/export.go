// Package export writes a finished run to disk: result tables (CSV, XLSX),
// review reports (HTML, DOCX) and the SQLite run archive.
package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/database"
	"github.com/TobiSchelling/swift/internal/model"
)

// Formats accepted by WriteAll.
const (
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
	FormatHTML   = "html"
	FormatDOCX   = "docx"
	FormatSQLite = "sqlite"
)

// AllFormats lists every supported output format.
var AllFormats = []string{FormatCSV, FormatXLSX, FormatHTML, FormatDOCX, FormatSQLite}

// A View selects which items of a run a table shows. input is the full
// idea table the run was given.
type View struct {
	Name  string
	Items func(result *model.BatchResult, input []model.Idea) []model.ItemResult
}

// Views are written in this order: removed ideas, remaining ideas, all ideas.
var Views = []View{
	{Name: "removed", Items: func(r *model.BatchResult, _ []model.Idea) []model.ItemResult { return r.Filtered() }},
	{Name: "remaining", Items: func(r *model.BatchResult, _ []model.Idea) []model.ItemResult { return r.Kept() }},
	{Name: "all", Items: WithInput},
}

// WithInput returns one item per input row, in input order. Rows the run did
// not judge (no problem text, or past the limit) carry an empty verdict and
// so an empty isFiltered column. Without input it returns the judged items.
func WithInput(result *model.BatchResult, input []model.Idea) []model.ItemResult {
	if len(input) == 0 {
		return result.All()
	}
	judged := make(map[int]model.ItemResult, len(result.Items))
	for _, it := range result.Items {
		judged[it.Idea.Row] = it
	}
	out := make([]model.ItemResult, 0, len(input))
	for _, idea := range input {
		if it, ok := judged[idea.Row]; ok {
			out = append(out, it)
			continue
		}
		out = append(out, model.ItemResult{Idea: idea})
	}
	return out
}

var defaultHeader = []string{"id", "problem", "solution"}

// Options describes one export.
type Options struct {
	Dir     string
	Formats []string
	// Header is the input table's header in original order. Nil means
	// id, problem, solution.
	Header []string
	// Ideas is the full input table. When set, the "all" view lists every
	// input row, judged or not.
	Ideas []model.Idea
	// Evaluation is recorded in the run archive.
	Evaluation model.EvaluationConfig
}

// WriteAll writes the requested formats into Dir/<run id>/ and returns the
// paths written.
func WriteAll(result *model.BatchResult, opts Options) ([]string, error) {
	runDir := filepath.Join(opts.Dir, result.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", runDir)
	}

	var written []string
	for _, format := range opts.Formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case FormatCSV:
			for _, v := range Views {
				path := filepath.Join(runDir, v.Name+"_ideas.csv")
				if err := writeFile(path, func(f *os.File) error {
					return WriteCSV(f, opts.Header, v.Items(result, opts.Ideas))
				}); err != nil {
					return written, err
				}
				written = append(written, path)
			}
		case FormatXLSX:
			path := filepath.Join(runDir, "ideas.xlsx")
			if err := WriteXLSX(path, opts.Header, result, opts.Ideas); err != nil {
				return written, err
			}
			written = append(written, path)
		case FormatHTML:
			path := filepath.Join(runDir, "report.html")
			if err := writeFile(path, func(f *os.File) error {
				return WriteHTML(f, result)
			}); err != nil {
				return written, err
			}
			written = append(written, path)
		case FormatDOCX:
			path := filepath.Join(runDir, "report.docx")
			if err := WriteDOCX(path, result); err != nil {
				return written, err
			}
			written = append(written, path)
		case FormatSQLite:
			path := filepath.Join(runDir, "archive.db")
			if err := writeArchive(path, result, opts.Evaluation); err != nil {
				return written, err
			}
			written = append(written, path)
		default:
			return written, model.NewError(model.KindValidation, nil,
				"unknown export format "+format+" (valid: "+strings.Join(AllFormats, ", ")+")")
		}
	}

	zap.L().Info("run exported", zap.String("dir", runDir), zap.Int("files", len(written)))
	return written, nil
}

// Rows renders items as table rows: the header in input order followed by
// isFiltered and analysis.
func Rows(header []string, items []model.ItemResult) [][]string {
	if len(header) == 0 {
		header = defaultHeader
	}
	out := make([][]string, 0, len(items)+1)
	out = append(out, append(append([]string{}, header...), "isFiltered", "analysis"))
	for _, it := range items {
		row := make([]string, 0, len(header)+2)
		for _, h := range header {
			row = append(row, column(it.Idea, h))
		}
		row = append(row, it.IsFiltered(), it.Verdict.Analysis)
		out = append(out, row)
	}
	return out
}

func column(idea model.Idea, name string) string {
	switch strings.ToLower(name) {
	case "id":
		return idea.ID
	case "problem":
		return idea.Problem
	case "solution":
		return idea.Solution
	}
	return idea.Extra[name]
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	return nil
}

func writeArchive(path string, result *model.BatchResult, cfg model.EvaluationConfig) error {
	db, err := database.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveRun(result, cfg)
}
