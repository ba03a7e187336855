// Package ingest loads idea tables (CSV or XLSX) into model.Idea values.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/TobiSchelling/swift/internal/model"
)

const (
	colID       = "id"
	colProblem  = "problem"
	colSolution = "solution"
)

// Table is a parsed input file: the header in original order plus ideas.
type Table struct {
	Header []string
	Ideas  []model.Idea
}

// ReadFile loads a .csv or .xlsx file.
func ReadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close()
		return ReadCSV(f)
	default:
		return nil, model.NewError(model.KindValidation, nil, fmt.Sprintf("unsupported input type %q (want .csv or .xlsx)", filepath.Ext(path)))
	}
}

// ReadCSV parses CSV data. Input that is not valid UTF-8 is decoded as
// ISO-8859-1.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv")
	}
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: decode latin-1")
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, model.NewError(model.KindValidation, err, "malformed csv")
	}
	return Parse(records)
}

func readXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, model.NewError(model.KindValidation, nil, "xlsx file has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return Parse(records)
}

// Parse turns raw records (header first) into a Table. The problem and
// solution columns are required and matched case-insensitively. Blank rows
// between data rows are kept as ideas without problem text, so a run reports
// them as skipped; blank rows after the last data row are dropped.
func Parse(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, model.NewError(model.KindValidation, nil, "input is empty")
	}

	header := make([]string, len(records[0]))
	index := make(map[string]int, len(header))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
		key := strings.ToLower(header[i])
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	var missing []string
	for _, col := range []string{colProblem, colSolution} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, model.NewError(model.KindValidation, nil,
			fmt.Sprintf("input does not contain the required column(s) %s", strings.Join(quoteAll(missing), ", ")))
	}

	idCol, hasID := index[colID]
	data := records[1:]
	for len(data) > 0 && isBlank(data[len(data)-1]) {
		data = data[:len(data)-1]
	}

	t := &Table{Header: header}
	for n, rec := range data {
		idea := model.Idea{
			Row:      n,
			Problem:  cell(rec, index[colProblem]),
			Solution: cell(rec, index[colSolution]),
		}
		if hasID {
			idea.ID = cell(rec, idCol)
		}
		if idea.ID == "" {
			idea.ID = strconv.Itoa(n + 1)
		}
		for i, h := range header {
			switch strings.ToLower(h) {
			case colID, colProblem, colSolution:
				continue
			}
			if v := cell(rec, i); v != "" {
				if idea.Extra == nil {
					idea.Extra = make(map[string]string)
				}
				idea.Extra[h] = v
			}
		}
		t.Ideas = append(t.Ideas, idea)
	}

	zap.L().Debug("parsed input table", zap.Int("rows", len(t.Ideas)), zap.Strings("columns", header))
	return t, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = "'" + s + "'"
	}
	return out
}
