package spreadsheet

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// snapshotDocument is the YAML layout of a workbook snapshot:
//
//	dateSystem: 1900
//	sheets:
//	  - name: Sheet1
//	    dimension: A1:C3
//	    cells:
//	      A1: 1
//	      B1: "=A1*2"
//	      C1: {array: "={1;2;3}", ref: C1:C3}
//	      D1: {date: 2024-01-02}
//	      E1: "#N/A"
//	names:
//	  - {name: Rate, formula: "Sheet1!$A$1", sheet: Sheet1}
//	tables:
//	  - {name: Sales, sheet: Sheet1, ref: A1:C4, headerRows: 1, columns: [Item, Qty, Price]}
type snapshotDocument struct {
	DateSystem int             `yaml:"dateSystem"`
	Sheets     []snapshotSheet `yaml:"sheets"`
	Names      []snapshotName  `yaml:"names"`
	Tables     []snapshotTable `yaml:"tables"`
}

type snapshotSheet struct {
	Name      string    `yaml:"name"`
	Dimension string    `yaml:"dimension"`
	Cells     yaml.Node `yaml:"cells"`
}

type snapshotName struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
	Sheet   string `yaml:"sheet"`
}

type snapshotTable struct {
	Name       string   `yaml:"name"`
	Sheet      string   `yaml:"sheet"`
	Ref        string   `yaml:"ref"`
	HeaderRows *int     `yaml:"headerRows"`
	TotalsRows int      `yaml:"totalsRows"`
	Columns    []string `yaml:"columns"`
}

// snapshotCell is the mapping form of a cell, used when a plain scalar is
// not enough.
type snapshotCell struct {
	Formula string     `yaml:"formula"`
	Array   string     `yaml:"array"`
	Ref     string     `yaml:"ref"`
	Text    *string    `yaml:"text"`
	Date    *time.Time `yaml:"date"`
	Error   string     `yaml:"error"`
}

// DecodeWorkbookYAML reads a workbook snapshot from YAML. plain cell values
// are typed by their YAML tag: numbers, booleans, timestamps (dates) and
// strings, where a leading '=' marks a formula and error text such as
// "#N/A" an error value.
func DecodeWorkbookYAML(r io.Reader) (*Workbook, error) {
	var doc snapshotDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding workbook snapshot: %w", err)
	}

	wb := &Workbook{DateSystem: DateSystem(doc.DateSystem)}
	if wb.DateSystem == 0 {
		wb.DateSystem = DateSystem1900
	}
	if wb.DateSystem != DateSystem1900 && wb.DateSystem != DateSystem1904 {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unsupported date system %d", doc.DateSystem))
	}

	sheetIndex := make(map[string]int, len(doc.Sheets))
	for i, s := range doc.Sheets {
		sheet, err := decodeSheet(s)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		wb.Sheets = append(wb.Sheets, sheet)
		sheetIndex[normalizeName(s.Name)] = i
	}
	resolveSheet := func(name string) (int, error) {
		idx, ok := sheetIndex[normalizeName(name)]
		if !ok {
			return 0, NewApplicationError(InvalidArgument, fmt.Sprintf("unknown sheet %q", name))
		}
		return idx, nil
	}

	for _, n := range doc.Names {
		dn := DefinedName{Name: n.Name, Formula: n.Formula}
		if n.Sheet != "" {
			idx, err := resolveSheet(n.Sheet)
			if err != nil {
				return nil, fmt.Errorf("name %q: %w", n.Name, err)
			}
			dn.LocalSheet = &idx
		}
		wb.DefinedNames = append(wb.DefinedNames, dn)
	}

	for _, t := range doc.Tables {
		table, err := decodeTable(t, resolveSheet)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		wb.Tables = append(wb.Tables, table)
	}
	return wb, nil
}

func decodeSheet(s snapshotSheet) (Sheet, error) {
	sheet := Sheet{Name: s.Name}
	if s.Dimension != "" {
		dim, err := ParseRange(s.Dimension)
		if err != nil {
			return Sheet{}, fmt.Errorf("dimension: %w", err)
		}
		sheet.Dimension = &dim
	}
	if s.Cells.Kind == 0 {
		return sheet, nil
	}
	if s.Cells.Kind != yaml.MappingNode {
		return Sheet{}, fmt.Errorf("line %d: cells must be a mapping", s.Cells.Line)
	}

	cells := make(map[CellAddress]Cell)
	var arrays []*Formula
	for i := 0; i+1 < len(s.Cells.Content); i += 2 {
		keyNode, valueNode := s.Cells.Content[i], s.Cells.Content[i+1]
		addr, err := ParseCellAddress(keyNode.Value)
		if err != nil {
			return Sheet{}, fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
		cell, err := decodeCell(valueNode)
		if err != nil {
			return Sheet{}, fmt.Errorf("cell %s: %w", keyNode.Value, err)
		}
		cell.Column = addr.Column
		cells[CellAddress{Column: addr.Column, Row: addr.Row}] = cell
		if cell.Formula != nil && cell.Formula.Type == FormulaTypeArray {
			arrays = append(arrays, cell.Formula)
		}
	}
	for _, f := range arrays {
		fillArrayBlock(cells, f)
	}
	sheet.Rows = groupRows(cells)
	return sheet, nil
}

// fillArrayBlock gives every unset cell of an array formula's range the
// formula itself, the way a spilled block is stored in a workbook file
func fillArrayBlock(cells map[CellAddress]Cell, f *Formula) {
	for addr := range f.Ref.Bounds(0).Iterate() {
		if _, ok := cells[addr]; !ok {
			cells[addr] = Cell{Column: addr.Column, Formula: f}
		}
	}
}

// groupRows orders cells into rows, both sorted by index
func groupRows(cells map[CellAddress]Cell) []Row {
	byRow := make(map[int][]Cell)
	for addr, cell := range cells {
		byRow[addr.Row] = append(byRow[addr.Row], cell)
	}
	rows := make([]Row, 0, len(byRow))
	for index, rowCells := range byRow {
		slices.SortFunc(rowCells, func(a, b Cell) int { return a.Column - b.Column })
		rows = append(rows, Row{Index: index, Cells: rowCells})
	}
	slices.SortFunc(rows, func(a, b Row) int { return a.Index - b.Index })
	return rows
}

func decodeCell(node *yaml.Node) (Cell, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		value, formula, err := decodeScalarCell(node)
		return Cell{Value: value, Formula: formula}, err
	case yaml.MappingNode:
		var raw snapshotCell
		if err := node.Decode(&raw); err != nil {
			return Cell{}, err
		}
		return raw.cell()
	}
	return Cell{}, fmt.Errorf("line %d: unsupported cell value", node.Line)
}

func decodeScalarCell(node *yaml.Node) (CellValue, *Formula, error) {
	switch node.ShortTag() {
	case "!!null":
		return CellValue{}, nil, nil
	case "!!int", "!!float":
		var n float64
		if err := node.Decode(&n); err != nil {
			return CellValue{}, nil, err
		}
		return NumberValue(n), nil, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return CellValue{}, nil, err
		}
		return BooleanValue(b), nil, nil
	case "!!timestamp":
		var t time.Time
		if err := node.Decode(&t); err != nil {
			return CellValue{}, nil, err
		}
		return DateValue(t), nil, nil
	}

	text := node.Value
	if strings.HasPrefix(text, "=") && len(text) > 1 {
		return CellValue{}, &Formula{Expression: text, Type: FormulaTypeNormal}, nil
	}
	if code, ok := ParseErrorCode(text); ok {
		return ErrorCellValue(code), nil, nil
	}
	return TextValue(text), nil, nil
}

func (raw snapshotCell) cell() (Cell, error) {
	switch {
	case raw.Array != "":
		if raw.Ref == "" {
			return Cell{}, fmt.Errorf("array formula %q needs a ref", raw.Array)
		}
		ref, err := ParseRange(raw.Ref)
		if err != nil {
			return Cell{}, fmt.Errorf("ref: %w", err)
		}
		return Cell{Formula: &Formula{Expression: raw.Array, Ref: &ref, Type: FormulaTypeArray}}, nil
	case raw.Formula != "":
		return Cell{Formula: &Formula{Expression: raw.Formula, Type: FormulaTypeNormal}}, nil
	case raw.Text != nil:
		return Cell{Value: TextValue(*raw.Text)}, nil
	case raw.Date != nil:
		return Cell{Value: DateValue(*raw.Date)}, nil
	case raw.Error != "":
		code, ok := ParseErrorCode(raw.Error)
		if !ok {
			return Cell{}, fmt.Errorf("unknown error value %q", raw.Error)
		}
		return Cell{Value: ErrorCellValue(code)}, nil
	}
	return Cell{}, nil
}

func decodeTable(t snapshotTable, resolveSheet func(string) (int, error)) (Table, error) {
	sheet, err := resolveSheet(t.Sheet)
	if err != nil {
		return Table{}, err
	}
	ref, err := ParseRange(t.Ref)
	if err != nil {
		return Table{}, fmt.Errorf("ref: %w", err)
	}
	table := Table{
		Name:           t.Name,
		Sheet:          sheet,
		Ref:            ref,
		HeaderRowCount: 1,
		TotalsRowCount: t.TotalsRows,
	}
	if t.HeaderRows != nil {
		table.HeaderRowCount = *t.HeaderRows
	}
	for _, col := range t.Columns {
		table.Columns = append(table.Columns, TableColumn{Name: col})
	}
	return table, nil
}
