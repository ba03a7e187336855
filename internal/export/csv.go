package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/swift/internal/model"
)

// WriteCSV writes one result view as CSV.
func WriteCSV(w io.Writer, header []string, items []model.ItemResult) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(header, items)); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	return nil
}
