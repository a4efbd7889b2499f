package spreadsheet

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// Evaluator computes cell and formula values over one immutable workbook
// snapshot. every cache it owns only grows; build a new Evaluator for a new
// snapshot. public methods are safe for concurrent use.
type Evaluator struct {
	mu sync.Mutex

	matrix     *WorkbookMatrix
	names      *DefinedNameTable
	tables     *TableIndex
	dateSystem DateSystem

	registry Registry
	parser   FormulaParser
	helpers  *Helpers
	logger   zerolog.Logger
	locale   language.Tag

	formulas *FormulaTable
	values   map[cellKey]Scalar
	spills   map[cellKey]spillBlock

	cellStack  *CalculationStack[cellKey]
	nameStack  *CalculationStack[nameKey]
	spillStack *CalculationStack[cellKey]
}

// cellKey identifies one cell of the workbook
type cellKey struct {
	sheet int
	col   int
	row   int
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithRegistry sets the function registry. the default is
// NewDefaultRegistry().
func WithRegistry(r Registry) Option {
	return func(e *Evaluator) { e.registry = r }
}

// WithParser sets the formula parser. the default is NewParser().
func WithParser(p FormulaParser) Option {
	return func(e *Evaluator) { e.parser = p }
}

// WithLogger sets the logger. the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithLocale sets the locale used to order text in comparisons.
func WithLocale(tag language.Tag) Option {
	return func(e *Evaluator) { e.locale = tag }
}

// NewEvaluator indexes the workbook and returns an evaluator for it
func NewEvaluator(wb *Workbook, opts ...Option) *Evaluator {
	e := &Evaluator{
		dateSystem: wb.DateSystem,
		logger:     zerolog.Nop(),
		locale:     language.English,
		values:     make(map[cellKey]Scalar),
		spills:     make(map[cellKey]spillBlock),
		cellStack:  NewCalculationStack[cellKey](),
		nameStack:  NewCalculationStack[nameKey](),
		spillStack: NewCalculationStack[cellKey](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewDefaultRegistry()
	}
	if e.parser == nil {
		e.parser = NewParser()
	}
	if e.dateSystem == 0 {
		e.dateSystem = DateSystem1900
	}
	e.helpers = NewHelpers(e.locale)
	e.matrix = NewWorkbookMatrix(wb)
	e.names = NewDefinedNameTable(wb.DefinedNames)
	e.tables = NewTableIndex(wb.Tables)
	e.formulas = NewFormulaTable(e.parser, &e.logger)
	return e
}

// Matrix returns the indexed workbook.
func (e *Evaluator) Matrix() *WorkbookMatrix {
	return e.matrix
}

// EvaluateCell returns the value of one cell. spreadsheet errors are
// returned as error scalars; the error return is reserved for invalid
// arguments and unknown functions.
func (e *Evaluator) EvaluateCell(sheet int, addr CellAddress) (Scalar, error) {
	if err := e.checkTarget(sheet, addr); err != nil {
		return Scalar{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.resolveCellScalar(sheet, addr)
}

// EvaluateFormula evaluates ad-hoc formula text anchored at A1 of sheet and
// reduces the result to a single value.
func (e *Evaluator) EvaluateFormula(sheet int, text string) (Scalar, error) {
	origin := CellAddress{Column: 1, Row: 1}
	if err := e.checkTarget(sheet, origin); err != nil {
		return Scalar{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.formulaScalar(sheet, origin, text)
}

// EvaluateFormulaResult evaluates ad-hoc formula text anchored at origin and
// returns the raw result, which may be an array.
func (e *Evaluator) EvaluateFormulaResult(sheet int, origin CellAddress, text string) (Result, error) {
	if err := e.checkTarget(sheet, origin); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	node := e.formulas.GetAST(sheet, text)
	if node == nil {
		return ScalarResult(ErrorValue(ErrorCodeName)), nil
	}
	r, err := e.eval(node, scope{sheet: sheet, origin: origin})
	if err != nil {
		s, err := boundaryScalar(err)
		return ScalarResult(s), err
	}
	return r, nil
}

func (e *Evaluator) checkTarget(sheet int, addr CellAddress) error {
	if e.matrix.Sheet(sheet) == nil {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("sheet index %d out of range", sheet))
	}
	if addr.Row < 1 || addr.Column < 1 || addr.Row > maxRows || addr.Column > maxColumns {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address %s", addr))
	}
	return nil
}

// resolveCellScalar returns the memoized value of a cell. re-entering a
// cell that is still being computed yields #REF! without caching it.
func (e *Evaluator) resolveCellScalar(sheet int, addr CellAddress) (Scalar, error) {
	key := cellKey{sheet: sheet, col: addr.Column, row: addr.Row}
	if v, ok := e.values[key]; ok {
		return v, nil
	}
	if e.cellStack.isProcessing(key) {
		e.logger.Debug().
			Int("sheet", sheet).
			Str("cell", addr.String()).
			Int("depth", e.cellStack.depth()).
			Msg("circular cell reference")
		return ErrorValue(ErrorCodeRef), nil
	}

	e.cellStack.push(key)
	defer e.cellStack.pop()

	v, err := e.computeCell(sheet, addr)
	if err != nil {
		return Scalar{}, err
	}
	e.values[key] = v
	e.logger.Trace().
		Int("sheet", sheet).
		Str("cell", addr.String()).
		Stringer("value", v).
		Msg("cell evaluated")
	return v, nil
}

func (e *Evaluator) computeCell(sheet int, addr CellAddress) (Scalar, error) {
	sm := e.matrix.Sheet(sheet)
	if sm == nil {
		return ErrorValue(ErrorCodeRef), nil
	}
	cell := sm.GetCell(addr.Row, addr.Column)
	if cell == nil {
		return Empty(), nil
	}
	if f := cell.Formula; f != nil {
		if f.Type == FormulaTypeArray && f.Ref != nil {
			return e.arrayFormulaScalar(sheet, addr, f)
		}
		return e.formulaScalar(sheet, addr, f.Expression)
	}
	return cell.Value.Scalar(), nil
}

// formulaScalar evaluates text at origin and converts the outcome into a
// single value.
func (e *Evaluator) formulaScalar(sheet int, origin CellAddress, text string) (Scalar, error) {
	node := e.formulas.GetAST(sheet, text)
	if node == nil {
		return ErrorValue(ErrorCodeName), nil
	}
	r, err := e.eval(node, scope{sheet: sheet, origin: origin})
	if err != nil {
		return boundaryScalar(err)
	}
	return toScalar(r), nil
}

// boundaryScalar converts a raised formula error into its error scalar.
// anything else is a caller problem and is passed through.
func boundaryScalar(err error) (Scalar, error) {
	if se, ok := asSpreadsheetError(err); ok {
		return ErrorValue(se.ErrorCode), nil
	}
	return Scalar{}, err
}

// CalculationStack tracks the keys currently being evaluated so re-entrant
// (cyclic) evaluation can be detected
type CalculationStack[K comparable] struct {
	items      []K
	processing map[K]struct{}
}

// NewCalculationStack creates a new calculation stack
func NewCalculationStack[K comparable]() *CalculationStack[K] {
	return &CalculationStack[K]{
		processing: make(map[K]struct{}),
	}
}

// push marks key as being processed
func (cs *CalculationStack[K]) push(key K) {
	cs.items = append(cs.items, key)
	cs.processing[key] = struct{}{}
}

// pop releases the most recently pushed key
func (cs *CalculationStack[K]) pop() (K, bool) {
	var zero K
	if len(cs.items) == 0 {
		return zero, false
	}
	key := cs.items[len(cs.items)-1]
	cs.items = cs.items[:len(cs.items)-1]
	delete(cs.processing, key)
	return key, true
}

// isProcessing checks if a key is currently being processed
func (cs *CalculationStack[K]) isProcessing(key K) bool {
	_, exists := cs.processing[key]
	return exists
}

// depth returns the number of keys in progress
func (cs *CalculationStack[K]) depth() int {
	return len(cs.items)
}
