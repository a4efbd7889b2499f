package spreadsheet

import (
	"fmt"
	"slices"
)

// Precedents returns the ranges a cell's formula reads directly: cell and
// range references, 3-D ranges, table references and defined names that
// stand for a reference. a cell without a formula, or whose formula does
// not parse, has none. single cells are returned as one-cell ranges.
func (e *Evaluator) Precedents(sheet int, addr CellAddress) ([]CellRange, error) {
	if err := e.checkTarget(sheet, addr); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cell := e.matrix.Sheet(sheet).GetCell(addr.Row, addr.Column)
	if cell == nil || cell.Formula == nil {
		return nil, nil
	}
	origin := addr
	if f := cell.Formula; f.Type == FormulaTypeArray && f.Ref != nil {
		b := f.Ref.Bounds(sheet)
		origin = CellAddress{Column: b.StartColumn, Row: b.StartRow}
	}
	node := e.formulas.GetAST(sheet, cell.Formula.Expression)
	if node == nil {
		return nil, nil
	}

	c := &precedentCollector{e: e, sc: scope{sheet: sheet, origin: origin}, seen: make(map[string]struct{})}
	c.walk(node)
	return c.ranges, nil
}

// precedentCollector walks a syntax tree and records each distinct
// reference once, in the order it first appears
type precedentCollector struct {
	e      *Evaluator
	sc     scope
	ranges []CellRange
	seen   map[string]struct{}
}

func (c *precedentCollector) add(r CellRange) {
	key := fmt.Sprintf("%s|%s", normalizeName(r.SheetName), r.Bounds(0))
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.ranges = append(c.ranges, r)
}

func (c *precedentCollector) walk(node Node) {
	switch n := node.(type) {
	case *ReferenceNode:
		c.add(CellRange{Start: n.Address, End: n.Address, SheetName: n.SheetName})
	case *RangeNode:
		c.add(n.Range)
	case *StructuredRefNode:
		if r, ok := c.tableRange(n); ok {
			c.add(r)
		}
	case *NameNode:
		if _, text, ok := c.e.names.lookup(c.sc.sheet, n.Name); ok {
			if ref, err := c.e.parseReference(text); err == nil {
				c.walk(ref)
			}
		}
	case *ArrayNode:
		for _, row := range n.Rows {
			for _, elem := range row {
				c.walk(elem)
			}
		}
	case *UnaryOpNode:
		c.walk(n.Operand)
	case *BinaryOpNode:
		c.walk(n.Left)
		c.walk(n.Right)
	case *CompareNode:
		c.walk(n.Left)
		c.walk(n.Right)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			c.walk(arg)
		}
	}
}

// tableRange resolves a table reference to a sheet-qualified range without
// reading it
func (c *precedentCollector) tableRange(n *StructuredRefNode) (CellRange, bool) {
	t, ok := c.e.tables.Lookup(n.Table)
	if !ok {
		return CellRange{}, false
	}
	sm := c.e.matrix.Sheet(t.Sheet)
	if sm == nil {
		return CellRange{}, false
	}
	startRow, endRow, err := t.rowSpan(n.Item, c.sc.origin)
	if err != nil || startRow > endRow {
		return CellRange{}, false
	}
	startCol, endCol, err := t.columnSpan(n.StartColumn, n.EndColumn)
	if err != nil {
		return CellRange{}, false
	}
	return CellRange{
		Start:     CellAddress{Column: startCol, Row: startRow},
		End:       CellAddress{Column: endCol, Row: endRow},
		SheetName: sm.Name,
	}, true
}

// SortRanges orders ranges by sheet name, then row, then column, for stable
// output.
func SortRanges(ranges []CellRange) {
	slices.SortStableFunc(ranges, func(a, b CellRange) int {
		ab, bb := a.Bounds(0), b.Bounds(0)
		switch {
		case normalizeName(a.SheetName) != normalizeName(b.SheetName):
			if normalizeName(a.SheetName) < normalizeName(b.SheetName) {
				return -1
			}
			return 1
		case ab.StartRow != bb.StartRow:
			return ab.StartRow - bb.StartRow
		}
		return ab.StartColumn - bb.StartColumn
	})
}
