package spreadsheet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EvaluatorTestCase builds a workbook snapshot cell by cell and asserts on
// the values an Evaluator computes for it. the evaluator is created on the
// first assertion; cells set afterwards are not seen.
type EvaluatorTestCase struct {
	t         *testing.T
	name      string
	workbook  *Workbook
	options   []Option
	evaluator *Evaluator
	err       error
}

func NewEvaluatorTestCase(t *testing.T, name string) *EvaluatorTestCase {
	tc := &EvaluatorTestCase{
		t:        t,
		name:     name,
		workbook: &Workbook{DateSystem: DateSystem1900},
	}
	return tc.AddSheet("Sheet1")
}

func (tc *EvaluatorTestCase) AddSheet(name string) *EvaluatorTestCase {
	tc.workbook.Sheets = append(tc.workbook.Sheets, Sheet{Name: name})
	return tc
}

func (tc *EvaluatorTestCase) WithOptions(opts ...Option) *EvaluatorTestCase {
	tc.options = append(tc.options, opts...)
	return tc
}

func (tc *EvaluatorTestCase) WithDateSystem(ds DateSystem) *EvaluatorTestCase {
	tc.workbook.DateSystem = ds
	return tc
}

// locate splits "Sheet2!B3" into a sheet index and address; unqualified
// addresses are on the first sheet
func (tc *EvaluatorTestCase) locate(address string) (int, CellAddress) {
	tc.t.Helper()
	sheetName, ref, err := splitSheetQualifier(address)
	require.NoError(tc.t, err, "%s: address %s", tc.name, address)
	addr, err := ParseCellAddress(ref)
	require.NoError(tc.t, err, "%s: address %s", tc.name, address)
	if sheetName == "" {
		return 0, addr
	}
	for i, s := range tc.workbook.Sheets {
		if normalizeName(s.Name) == normalizeName(sheetName) {
			return i, addr
		}
	}
	tc.t.Fatalf("%s: unknown sheet %s", tc.name, sheetName)
	return 0, addr
}

func (tc *EvaluatorTestCase) putCell(sheet int, addr CellAddress, cell Cell) {
	cell.Column = addr.Column
	rows := tc.workbook.Sheets[sheet].Rows
	for i := range rows {
		if rows[i].Index != addr.Row {
			continue
		}
		for j := range rows[i].Cells {
			if rows[i].Cells[j].Column == addr.Column {
				rows[i].Cells[j] = cell
				return
			}
		}
		rows[i].Cells = append(rows[i].Cells, cell)
		return
	}
	tc.workbook.Sheets[sheet].Rows = append(rows, Row{Index: addr.Row, Cells: []Cell{cell}})
}

// Set stores a value: numbers, booleans, error codes and times are typed;
// strings starting with '=' are formulas.
func (tc *EvaluatorTestCase) Set(address string, value any) *EvaluatorTestCase {
	tc.t.Helper()
	sheet, addr := tc.locate(address)
	var cell Cell
	switch v := value.(type) {
	case float64:
		cell.Value = NumberValue(v)
	case int:
		cell.Value = NumberValue(float64(v))
	case bool:
		cell.Value = BooleanValue(v)
	case ErrorCode:
		cell.Value = ErrorCellValue(v)
	case time.Time:
		cell.Value = DateValue(v)
	case string:
		if len(v) > 1 && v[0] == '=' {
			cell.Formula = &Formula{Expression: v, Type: FormulaTypeNormal}
		} else {
			cell.Value = TextValue(v)
		}
	default:
		tc.t.Fatalf("%s: unsupported value %T", tc.name, value)
	}
	tc.putCell(sheet, addr, cell)
	return tc
}

// SetArray stores an array formula on every cell of ref
func (tc *EvaluatorTestCase) SetArray(ref string, formula string) *EvaluatorTestCase {
	tc.t.Helper()
	r, err := ParseRange(ref)
	require.NoError(tc.t, err)
	sheet := 0
	if r.SheetName != "" {
		sheet, _ = tc.locate(r.SheetName + "!A1")
	}
	f := &Formula{Expression: formula, Ref: &CellRange{Start: r.Start, End: r.End}, Type: FormulaTypeArray}
	for addr := range r.Bounds(sheet).Iterate() {
		tc.putCell(sheet, addr, Cell{Formula: f})
	}
	return tc
}

func (tc *EvaluatorTestCase) AddName(name, formula string) *EvaluatorTestCase {
	tc.workbook.DefinedNames = append(tc.workbook.DefinedNames, DefinedName{Name: name, Formula: formula})
	return tc
}

func (tc *EvaluatorTestCase) AddLocalName(sheet int, name, formula string) *EvaluatorTestCase {
	tc.workbook.DefinedNames = append(tc.workbook.DefinedNames, DefinedName{Name: name, Formula: formula, LocalSheet: &sheet})
	return tc
}

func (tc *EvaluatorTestCase) AddTable(table Table) *EvaluatorTestCase {
	tc.workbook.Tables = append(tc.workbook.Tables, table)
	return tc
}

func (tc *EvaluatorTestCase) Evaluator() *Evaluator {
	if tc.evaluator == nil {
		tc.evaluator = NewEvaluator(tc.workbook, tc.options...)
	}
	return tc.evaluator
}

func (tc *EvaluatorTestCase) cell(address string) (Scalar, bool) {
	tc.t.Helper()
	sheet, addr := tc.locate(address)
	v, err := tc.Evaluator().EvaluateCell(sheet, addr)
	if !assert.NoError(tc.t, err, "%s: EvaluateCell(%s)", tc.name, address) {
		return Scalar{}, false
	}
	return v, true
}

// assertScalar compares a value with an expectation given as a Go value:
// float64/int, string, bool, ErrorCode or nil for empty
func assertScalar(t *testing.T, actual Scalar, expected any, msgAndArgs ...any) {
	t.Helper()
	switch exp := expected.(type) {
	case float64:
		if assert.Equal(t, KindNumber, actual.Kind(), msgAndArgs...) {
			assert.InDelta(t, exp, actual.Num(), 1e-10, msgAndArgs...)
		}
	case int:
		if assert.Equal(t, KindNumber, actual.Kind(), msgAndArgs...) {
			assert.InDelta(t, float64(exp), actual.Num(), 1e-10, msgAndArgs...)
		}
	case string:
		if assert.Equal(t, KindString, actual.Kind(), msgAndArgs...) {
			assert.Equal(t, exp, actual.Str(), msgAndArgs...)
		}
	case bool:
		if assert.Equal(t, KindBoolean, actual.Kind(), msgAndArgs...) {
			assert.Equal(t, exp, actual.Bool(), msgAndArgs...)
		}
	case ErrorCode:
		if assert.Equal(t, KindError, actual.Kind(), msgAndArgs...) {
			assert.Equal(t, exp.String(), actual.Code().String(), msgAndArgs...)
		}
	case nil:
		assert.Equal(t, KindEmpty, actual.Kind(), msgAndArgs...)
	default:
		t.Fatalf("unsupported expectation %T", expected)
	}
}

func (tc *EvaluatorTestCase) AssertCellEq(address string, expected any) *EvaluatorTestCase {
	tc.t.Helper()
	if v, ok := tc.cell(address); ok {
		assertScalar(tc.t, v, expected, "%s: cell %s = %s", tc.name, address, v)
	}
	return tc
}

func (tc *EvaluatorTestCase) AssertCellEmpty(address string) *EvaluatorTestCase {
	tc.t.Helper()
	return tc.AssertCellEq(address, nil)
}

func (tc *EvaluatorTestCase) AssertCellErr(address string, code ErrorCode) *EvaluatorTestCase {
	tc.t.Helper()
	return tc.AssertCellEq(address, code)
}

// AssertFormulaEq evaluates ad-hoc formula text on the first sheet
func (tc *EvaluatorTestCase) AssertFormulaEq(formula string, expected any) *EvaluatorTestCase {
	tc.t.Helper()
	v, err := tc.Evaluator().EvaluateFormula(0, formula)
	if assert.NoError(tc.t, err, "%s: EvaluateFormula(%s)", tc.name, formula) {
		assertScalar(tc.t, v, expected, "%s: %s = %s", tc.name, formula, v)
	}
	return tc
}

// AssertFormulaResult compares the raw result of formula, anchored at
// origin on the first sheet, in array literal notation
func (tc *EvaluatorTestCase) AssertFormulaResult(origin, formula, expected string) *EvaluatorTestCase {
	tc.t.Helper()
	addr, err := ParseCellAddress(origin)
	require.NoError(tc.t, err)
	r, err := tc.Evaluator().EvaluateFormulaResult(0, addr, formula)
	if assert.NoError(tc.t, err, "%s: EvaluateFormulaResult(%s)", tc.name, formula) {
		assert.Equal(tc.t, expected, r.String(), "%s: %s", tc.name, formula)
	}
	return tc
}

// ExpectCellAppError asserts that evaluating the cell fails with an
// application error carrying code
func (tc *EvaluatorTestCase) ExpectCellAppError(address string, code AppErrorCode) *EvaluatorTestCase {
	tc.t.Helper()
	sheet, addr := tc.locate(address)
	_, err := tc.Evaluator().EvaluateCell(sheet, addr)
	tc.err = err
	var appErr *AppError
	if assert.True(tc.t, errors.As(err, &appErr), "%s: got %v, want AppError", tc.name, err) {
		assert.Equal(tc.t, code, appErr.Code, "%s", tc.name)
	}
	return tc
}

// Err returns the error captured by the last Expect call
func (tc *EvaluatorTestCase) Err() error {
	return tc.err
}

func (tc *EvaluatorTestCase) End() {
}
