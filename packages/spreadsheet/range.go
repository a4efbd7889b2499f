package spreadsheet

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// CellRange is a rectangular block of cells. Start may come after End;
// Bounds normalizes it. SheetName is empty for an unqualified range and may
// hold a "First:Last" span for a 3-D range.
type CellRange struct {
	Start     CellAddress
	End       CellAddress
	SheetName string
}

// RangeAddress represents the normalized bounds of a range within a single
// sheet
type RangeAddress struct {
	Sheet       int
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// Bounds returns the normalized bounds of the range on sheet.
func (r CellRange) Bounds(sheet int) RangeAddress {
	return RangeAddress{
		Sheet:       sheet,
		StartRow:    min(r.Start.Row, r.End.Row),
		StartColumn: min(r.Start.Column, r.End.Column),
		EndRow:      max(r.Start.Row, r.End.Row),
		EndColumn:   max(r.Start.Column, r.End.Column),
	}
}

// SheetSpan splits a 3-D sheet qualifier into its first and last sheet
// names. ok is false for a single-sheet qualifier.
func (r CellRange) SheetSpan() (first, last string, ok bool) {
	first, last, ok = strings.Cut(r.SheetName, ":")
	return first, last, ok
}

func (r CellRange) String() string {
	var sb strings.Builder
	if r.SheetName != "" {
		sb.WriteString(quoteSheetName(r.SheetName))
		sb.WriteByte('!')
	}
	sb.WriteString(r.Start.String())
	sb.WriteByte(':')
	sb.WriteString(r.End.String())
	return sb.String()
}

func (r RangeAddress) Rows() int    { return r.EndRow - r.StartRow + 1 }
func (r RangeAddress) Columns() int { return r.EndColumn - r.StartColumn + 1 }

// Contains reports whether the cell lies inside the range.
func (r RangeAddress) Contains(sheet, row, col int) bool {
	return r.Sheet == sheet &&
		row >= r.StartRow && row <= r.EndRow &&
		col >= r.StartColumn && col <= r.EndColumn
}

// Iterate yields every address in the range in row-major order.
func (r RangeAddress) Iterate() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for row := r.StartRow; row <= r.EndRow; row++ {
			for col := r.StartColumn; col <= r.EndColumn; col++ {
				if !yield(CellAddress{Column: col, Row: row}) {
					return
				}
			}
		}
	}
}

func (r RangeAddress) String() string {
	return fmt.Sprintf("%s%d:%s%d", ColumnName(r.StartColumn), r.StartRow, ColumnName(r.EndColumn), r.EndRow)
}

// ParseRange parses reference text such as "A1:B2", "Sheet1!A1", "A:A",
// "1:3" or "'My Sheet'!$A$1:$C$9" into a range. a single cell becomes a
// one-cell range. whole columns and rows span the full grid and are clamped
// to sheet bounds at evaluation time.
func ParseRange(text string) (CellRange, error) {
	sheet, ref, err := splitSheetQualifier(strings.TrimSpace(text))
	if err != nil {
		return CellRange{}, err
	}
	startText, endText, isRange := strings.Cut(ref, ":")
	if !isRange {
		addr, err := ParseCellAddress(ref)
		if err != nil {
			return CellRange{}, err
		}
		return CellRange{Start: addr, End: addr, SheetName: sheet}, nil
	}

	if start, err := ParseCellAddress(startText); err == nil {
		end, err := ParseCellAddress(endText)
		if err != nil {
			return CellRange{}, fmt.Errorf("invalid range end in %s: %w", text, err)
		}
		return CellRange{Start: start, End: end, SheetName: sheet}, nil
	}

	// whole columns (A:C)
	if startCol, ok := parseColumnOnly(startText); ok {
		endCol, ok := parseColumnOnly(endText)
		if !ok {
			return CellRange{}, fmt.Errorf("invalid column range: %s", text)
		}
		return CellRange{
			Start:     CellAddress{Column: startCol, Row: 1},
			End:       CellAddress{Column: endCol, Row: maxRows},
			SheetName: sheet,
		}, nil
	}

	// whole rows (1:3)
	if startRow, ok := parseRowOnly(startText); ok {
		endRow, ok := parseRowOnly(endText)
		if !ok {
			return CellRange{}, fmt.Errorf("invalid row range: %s", text)
		}
		return CellRange{
			Start:     CellAddress{Column: 1, Row: startRow},
			End:       CellAddress{Column: maxColumns, Row: endRow},
			SheetName: sheet,
		}, nil
	}
	return CellRange{}, fmt.Errorf("invalid range: %s", text)
}

// clamp trims whole-column and whole-row spans to the tracked sheet bounds.
func (r RangeAddress) clamp(maxRow, maxCol int) RangeAddress {
	if r.StartRow == 1 && r.EndRow == maxRows {
		r.EndRow = maxRow
	}
	if r.StartColumn == 1 && r.EndColumn == maxColumns {
		r.EndColumn = maxCol
	}
	return r
}

// splitSheetQualifier separates "Sheet!A1" into its sheet and reference
// parts, removing quotes from the sheet name.
func splitSheetQualifier(text string) (sheet, ref string, err error) {
	idx := strings.LastIndex(text, "!")
	if idx == -1 {
		return "", text, nil
	}
	sheet, ref = text[:idx], text[idx+1:]
	if strings.HasPrefix(sheet, "'") {
		if len(sheet) < 2 || !strings.HasSuffix(sheet, "'") {
			return "", "", fmt.Errorf("unterminated sheet name: %s", text)
		}
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	if sheet == "" {
		return "", "", fmt.Errorf("empty sheet name: %s", text)
	}
	return sheet, ref, nil
}

func parseColumnOnly(s string) (int, bool) {
	s = strings.TrimPrefix(s, "$")
	for i := 0; i < len(s); i++ {
		if !isASCIILetter(s[i]) {
			return 0, false
		}
	}
	col, err := ColumnIndex(s)
	return col, err == nil
}

func parseRowOnly(s string) (int, bool) {
	s = strings.TrimPrefix(s, "$")
	row, err := strconv.Atoi(s)
	if err != nil || row < 1 || row > maxRows {
		return 0, false
	}
	return row, true
}

// quoteSheetName adds quotes when a sheet name needs them in reference text.
func quoteSheetName(name string) string {
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !isASCIILetter(ch) && !isASCIIDigit(ch) && ch != '_' && ch != '.' && ch != ':' {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}
