package spreadsheet

import "strings"

// SheetMatrix is the query-friendly form of one sheet: row -> column -> cell,
// plus the tracked bounds. it is built once and never mutated.
type SheetMatrix struct {
	Name   string
	rows   map[int]map[int]*Cell
	MaxRow int
	MaxCol int
}

// GetCell returns the cell at the given 1-based position, or nil.
func (s *SheetMatrix) GetCell(row, col int) *Cell {
	cols, ok := s.rows[row]
	if !ok {
		return nil
	}
	return cols[col]
}

// GetTotalCells returns the number of populated cells.
func (s *SheetMatrix) GetTotalCells() int {
	total := 0
	for _, cols := range s.rows {
		total += len(cols)
	}
	return total
}

// WorkbookMatrix indexes every sheet of a snapshot and maps normalized sheet
// names to their position.
type WorkbookMatrix struct {
	Sheets           []*SheetMatrix
	sheetIndexByName map[string]int // trimmed, upper-cased name -> index
}

// NewWorkbookMatrix builds the matrix for a snapshot. bounds start from the
// declared dimension (at least 1x1) and grow to cover every cell present.
// sheets whose normalized names collide overwrite earlier entries.
func NewWorkbookMatrix(wb *Workbook) *WorkbookMatrix {
	m := &WorkbookMatrix{
		Sheets:           make([]*SheetMatrix, 0, len(wb.Sheets)),
		sheetIndexByName: make(map[string]int, len(wb.Sheets)),
	}
	for i := range wb.Sheets {
		sheet := &wb.Sheets[i]
		sm := &SheetMatrix{
			Name:   sheet.Name,
			rows:   make(map[int]map[int]*Cell),
			MaxRow: 1,
			MaxCol: 1,
		}
		if sheet.Dimension != nil {
			b := sheet.Dimension.Bounds(i)
			sm.MaxRow = max(sm.MaxRow, b.EndRow)
			sm.MaxCol = max(sm.MaxCol, b.EndColumn)
		}
		for r := range sheet.Rows {
			row := &sheet.Rows[r]
			cols, ok := sm.rows[row.Index]
			if !ok {
				cols = make(map[int]*Cell, len(row.Cells))
				sm.rows[row.Index] = cols
			}
			for c := range row.Cells {
				cell := &row.Cells[c]
				cols[cell.Column] = cell
				sm.MaxCol = max(sm.MaxCol, cell.Column)
			}
			if len(row.Cells) > 0 {
				sm.MaxRow = max(sm.MaxRow, row.Index)
			}
		}
		m.Sheets = append(m.Sheets, sm)
		m.sheetIndexByName[normalizeName(sheet.Name)] = i
	}
	return m
}

// SheetIndex resolves a sheet name case-insensitively.
func (m *WorkbookMatrix) SheetIndex(name string) (int, bool) {
	idx, ok := m.sheetIndexByName[normalizeName(name)]
	return idx, ok
}

// Sheet returns the sheet at index, or nil when out of range.
func (m *WorkbookMatrix) Sheet(index int) *SheetMatrix {
	if index < 0 || index >= len(m.Sheets) {
		return nil
	}
	return m.Sheets[index]
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
