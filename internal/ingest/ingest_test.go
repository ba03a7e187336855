package ingest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/TobiSchelling/swift/internal/model"
)

func TestReadCSVCaseInsensitiveHeader(t *testing.T) {
	data := "ID,Problem,Solution,Team\n" +
		"a1,The usage of plastic bottles,refill station service,blue\n" +
		"a2,,n/a,red\n"

	table, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table.Ideas, 2)

	first := table.Ideas[0]
	assert.Equal(t, "a1", first.ID)
	assert.Equal(t, 0, first.Row)
	assert.Equal(t, "The usage of plastic bottles", first.Problem)
	assert.Equal(t, "refill station service", first.Solution)
	assert.Equal(t, "blue", first.Extra["Team"])

	assert.False(t, table.Ideas[1].HasProblem())
	assert.Equal(t, []string{"ID", "Problem", "Solution", "Team"}, table.Header)
}

func TestReadCSVMissingColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("id,problem\n1,x\n"))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Contains(t, err.Error(), "'solution'")
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestReadCSVWithoutIDUsesRowNumber(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("problem,solution\np1,s1\n\np2,s2\n"))
	require.NoError(t, err)
	require.Len(t, table.Ideas, 2)
	assert.Equal(t, "1", table.Ideas[0].ID)
	assert.Equal(t, "p2", table.Ideas[1].Problem)
}

func TestReadCSVKeepsInteriorBlankRows(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("problem,solution\np1,s1\n,\np2,s2\n,\n , \n"))
	require.NoError(t, err)
	require.Len(t, table.Ideas, 3)

	blank := table.Ideas[1]
	assert.Equal(t, 1, blank.Row)
	assert.Equal(t, "2", blank.ID)
	assert.False(t, blank.HasProblem())
	assert.Equal(t, 2, table.Ideas[2].Row)
	assert.Equal(t, "p2", table.Ideas[2].Problem)
}

func TestReadCSVLatin1(t *testing.T) {
	// "café" encoded as ISO-8859-1
	data := []byte("problem,solution\ncaf\xe9 waste,compost\n")
	table, err := ReadCSV(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, table.Ideas, 1)
	assert.Equal(t, "café waste", table.Ideas[0].Problem)
}

func TestReadFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ideas.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Ideas")
	require.NoError(t, err)
	for _, rec := range [][]string{
		{"Problem", "SOLUTION"},
		{"e-waste", "modular phones"},
	} {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))

	table, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, table.Ideas, 1)
	assert.Equal(t, "modular phones", table.Ideas[0].Solution)
}

func TestReadFileUnsupportedExtension(t *testing.T) {
	_, err := ReadFile("ideas.pdf")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}
