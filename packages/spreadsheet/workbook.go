package spreadsheet

// DateSystem identifies the workbook's serial date epoch. it is opaque to the
// evaluator and handed to functions that care about dates.
type DateSystem int

const (
	DateSystem1900 DateSystem = 1900
	DateSystem1904 DateSystem = 1904
)

// Workbook is an immutable snapshot of everything a formula can see.
type Workbook struct {
	Sheets       []Sheet
	DefinedNames []DefinedName
	Tables       []Table
	DateSystem   DateSystem
}

// Sheet is one sheet of a snapshot. Dimension is the declared used range,
// if any.
type Sheet struct {
	Name      string
	Dimension *CellRange
	Rows      []Row
}

// Row holds the populated cells of one 1-based row.
type Row struct {
	Index int
	Cells []Cell
}

// DefinedName is a workbook or sheet scoped name. LocalSheet is nil for a
// workbook-global name.
type DefinedName struct {
	Name       string
	Formula    string
	LocalSheet *int
}

type TableColumn struct {
	Name string
}

// Table is a structured table (list object) placed on a sheet.
type Table struct {
	Name           string
	Sheet          int
	Ref            CellRange
	HeaderRowCount int
	TotalsRowCount int
	Columns        []TableColumn
}
