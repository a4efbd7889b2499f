package spreadsheet

import (
	"strings"
)

// TableIndex maps upper-cased table names to their definitions.
type TableIndex struct {
	tables map[string]*Table
}

// NewTableIndex indexes tables by name. a later table with the same name
// replaces an earlier one.
func NewTableIndex(tables []Table) *TableIndex {
	idx := &TableIndex{tables: make(map[string]*Table, len(tables))}
	for i := range tables {
		idx.tables[normalizeName(tables[i].Name)] = &tables[i]
	}
	return idx
}

// Lookup finds a table case-insensitively.
func (idx *TableIndex) Lookup(name string) (*Table, bool) {
	t, ok := idx.tables[normalizeName(name)]
	return t, ok
}

// columnIndex returns the 0-based position of a column, ignoring case
func (t *Table) columnIndex(name string) (int, bool) {
	for i, col := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(col.Name), strings.TrimSpace(name)) {
			return i, true
		}
	}
	return 0, false
}

// rowSpan returns the first and last sheet rows selected by item. origin is
// only consulted for #THIS ROW.
func (t *Table) rowSpan(item string, origin CellAddress) (int, int, error) {
	b := t.Ref.Bounds(t.Sheet)
	headers := max(t.HeaderRowCount, 0)
	totals := max(t.TotalsRowCount, 0)
	dataStart, dataEnd := b.StartRow+headers, b.EndRow-totals

	switch item {
	case ItemAll:
		return b.StartRow, b.EndRow, nil
	case ItemData, "":
		return dataStart, dataEnd, nil
	case ItemHeaders:
		return b.StartRow, b.StartRow + headers - 1, nil
	case ItemTotals:
		return b.EndRow - totals + 1, b.EndRow, nil
	case ItemThisRow:
		if origin.Row < dataStart || origin.Row > dataEnd {
			return 0, 0, raise(ErrorCodeRef, "row %d is outside the data rows of %s", origin.Row, t.Name)
		}
		return origin.Row, origin.Row, nil
	}
	return 0, 0, raise(ErrorCodeRef, "unknown structured reference item %s", item)
}

// columnSpan returns the first and last sheet columns named by a reference.
// no column means every column of the table.
func (t *Table) columnSpan(startName, endName string) (int, int, error) {
	b := t.Ref.Bounds(t.Sheet)
	if startName == "" {
		return b.StartColumn, b.EndColumn, nil
	}
	if endName == "" {
		endName = startName
	}
	lo, ok := t.columnIndex(startName)
	if !ok {
		return 0, 0, raise(ErrorCodeRef, "table %s has no column %s", t.Name, startName)
	}
	hi, ok := t.columnIndex(endName)
	if !ok {
		return 0, 0, raise(ErrorCodeRef, "table %s has no column %s", t.Name, endName)
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return b.StartColumn + lo, b.StartColumn + hi, nil
}

// resolveStructuredRef turns a table reference into the range it covers on
// the table's sheet and reads it.
func (e *Evaluator) resolveStructuredRef(n *StructuredRefNode, sc scope) (Result, error) {
	t, ok := e.tables.Lookup(n.Table)
	if !ok {
		return Result{}, raise(ErrorCodeName, "unknown table %s", n.Table)
	}
	startRow, endRow, err := t.rowSpan(n.Item, sc.origin)
	if err != nil {
		return Result{}, err
	}
	if startRow > endRow {
		return Result{}, raise(ErrorCodeRef, "%s selects no rows", n.ToString())
	}
	startCol, endCol, err := t.columnSpan(n.StartColumn, n.EndColumn)
	if err != nil {
		return Result{}, err
	}
	return e.rangeOnSheet(RangeAddress{
		Sheet:       t.Sheet,
		StartRow:    startRow,
		StartColumn: startCol,
		EndRow:      endRow,
		EndColumn:   endCol,
	})
}
