package spreadsheet

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestWorkbook(t *testing.T) *Workbook {
	t.Helper()
	f, err := os.Open("testdata/workbook.yaml")
	require.NoError(t, err)
	defer f.Close()
	wb, err := DecodeWorkbookYAML(f)
	require.NoError(t, err)
	return wb
}

func TestDecodeWorkbookYAML(t *testing.T) {
	wb := loadTestWorkbook(t)

	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, DateSystem1900, wb.DateSystem)
	assert.Equal(t, "Summary", wb.Sheets[0].Name)
	require.NotNil(t, wb.Sheets[0].Dimension)
	assert.Equal(t, "A1:D6", wb.Sheets[0].Dimension.String())
	assert.Nil(t, wb.Sheets[1].Dimension)

	// rows and cells come out sorted
	for _, sheet := range wb.Sheets {
		for i, row := range sheet.Rows {
			if i > 0 {
				assert.Less(t, sheet.Rows[i-1].Index, row.Index)
			}
			for j := 1; j < len(row.Cells); j++ {
				assert.Less(t, row.Cells[j-1].Column, row.Cells[j].Column)
			}
		}
	}

	require.Len(t, wb.DefinedNames, 3)
	assert.Nil(t, wb.DefinedNames[0].LocalSheet)
	require.NotNil(t, wb.DefinedNames[2].LocalSheet)
	assert.Equal(t, 1, *wb.DefinedNames[2].LocalSheet)

	require.Len(t, wb.Tables, 1)
	table := wb.Tables[0]
	assert.Equal(t, 1, table.Sheet)
	assert.Equal(t, 1, table.HeaderRowCount)
	assert.Equal(t, 1, table.TotalsRowCount)
	assert.Equal(t, []TableColumn{{Name: "Item"}, {Name: "Qty"}}, table.Columns)
}

func TestDecodedWorkbookEvaluates(t *testing.T) {
	e := NewEvaluator(loadTestWorkbook(t))

	cell := func(sheet int, ref string) Scalar {
		t.Helper()
		addr, err := ParseCellAddress(ref)
		require.NoError(t, err)
		v, err := e.EvaluateCell(sheet, addr)
		require.NoError(t, err, ref)
		return v
	}

	assertScalar(t, cell(0, "A4"), 25)
	assertScalar(t, cell(0, "A5"), 10)
	assertScalar(t, cell(0, "A6"), 25)
	assertScalar(t, cell(0, "B1"), ErrorCodeNA)
	assertScalar(t, cell(0, "B2"), "2024-03-05T00:00:00.000Z")
	assertScalar(t, cell(0, "B3"), "=not a formula")
	assertScalar(t, cell(0, "B4"), ErrorCodeDiv0)
	assertScalar(t, cell(0, "B5"), 10)
	assertScalar(t, cell(0, "B6"), nil)
	assertScalar(t, cell(0, "C1"), 1)
	assertScalar(t, cell(0, "D1"), 2)
	assertScalar(t, cell(0, "C2"), 3)
	assertScalar(t, cell(0, "D2"), 4)
	assertScalar(t, cell(0, "C4"), "Item")
	assertScalar(t, cell(0, "C6"), ErrorCodeName)
	assertScalar(t, cell(1, "C2"), 2000)

	v, err := e.EvaluateFormula(0, "=Scale")
	require.NoError(t, err)
	assertScalar(t, v, 100)

	_, err = e.EvaluateCell(0, CellAddress{Column: 3, Row: 5})
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, NotFound, appErr.Code)
}

func TestDecodeWorkbookYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"DateSystem", "dateSystem: 1901\nsheets: [{name: S}]", "unsupported date system"},
		{"CellsNotMapping", "sheets: [{name: S, cells: [1, 2]}]", "cells must be a mapping"},
		{"BadAddress", "sheets: [{name: S, cells: {Q: 1}}]", "invalid cell reference"},
		{"ArrayWithoutRef", "sheets: [{name: S, cells: {A1: {array: \"={1}\"}}}]", "needs a ref"},
		{"UnknownError", "sheets: [{name: S, cells: {A1: {error: \"#OOPS\"}}}]", "unknown error value"},
		{"NameSheet", "sheets: [{name: S}]\nnames: [{name: N, formula: \"1\", sheet: T}]", "unknown sheet"},
		{"TableSheet", "sheets: [{name: S}]\ntables: [{name: T, sheet: X, ref: A1:B2}]", "unknown sheet"},
		{"Syntax", "sheets: [", "decoding workbook snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWorkbookYAML(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := DecodeWorkbookYAML(strings.NewReader("dateSystem: 1901\nsheets: []"))
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, InvalidArgument, appErr.Code)
}

func TestDecodeArrayBlockKeepsExplicitCells(t *testing.T) {
	doc := `
sheets:
  - name: S
    cells:
      A1: {array: "={1,2}", ref: A1:B1}
      B1: 7
`
	wb, err := DecodeWorkbookYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, wb.Sheets[0].Rows, 1)
	cells := wb.Sheets[0].Rows[0].Cells
	require.Len(t, cells, 2)
	require.NotNil(t, cells[0].Formula)
	assert.Equal(t, FormulaTypeArray, cells[0].Formula.Type)
	assert.Nil(t, cells[1].Formula)
	assert.Equal(t, NumberValue(7), cells[1].Value)
}
