package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/TobiSchelling/swift/internal/model"
)

// WriteXLSX writes a workbook with one sheet per view. input may be nil.
func WriteXLSX(path string, header []string, result *model.BatchResult, input []model.Idea) error {
	f := xlsx.NewFile()
	for _, v := range Views {
		sheet, err := f.AddSheet(sheetName(v.Name))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", v.Name)
		}
		for i, rec := range Rows(header, v.Items(result, input)) {
			row := sheet.AddRow()
			for _, value := range rec {
				cell := row.AddCell()
				cell.SetString(value)
				if i == 0 {
					cell.GetStyle().Font.Bold = true
				}
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func sheetName(view string) string {
	return strings.ToUpper(view[:1]) + view[1:]
}
