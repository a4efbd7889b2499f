package spreadsheet

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// scope is the per-call evaluation context: the default sheet for
// unqualified references and the cell the formula is anchored at.
type scope struct {
	sheet  int
	origin CellAddress
}

// eval is the node evaluator. formula errors are raised as
// *SpreadsheetError and converted back into error scalars at the nearest
// cell, name or formula boundary.
func (e *Evaluator) eval(node Node, sc scope) (Result, error) {
	switch n := node.(type) {
	case *LiteralNode:
		if err := n.Value.Err(); err != nil {
			return Result{}, err
		}
		return ScalarResult(n.Value), nil

	case *NameNode:
		return e.resolveName(n.Name, sc)

	case *StructuredRefNode:
		return e.resolveStructuredRef(n, sc)

	case *ReferenceNode:
		sheet, err := e.sheetFor(n.SheetName, sc)
		if err != nil {
			return Result{}, err
		}
		v, err := e.resolveCellScalar(sheet, n.Address)
		if err != nil {
			return Result{}, err
		}
		if err := v.Err(); err != nil {
			return Result{}, err
		}
		return ScalarResult(v), nil

	case *RangeNode:
		return e.resolveRange(n.Range, sc)

	case *ArrayNode:
		return e.evalArray(n, sc)

	case *UnaryOpNode:
		return e.evalUnary(n, sc)

	case *BinaryOpNode:
		return e.evalBinary(n, sc)

	case *CompareNode:
		return e.evalCompare(n, sc)

	case *FunctionCallNode:
		return e.callFunction(n, sc)

	case nil:
		return Result{}, NewApplicationError(Internal, "nil syntax tree node")
	}
	return Result{}, NewApplicationError(Internal, fmt.Sprintf("unsupported syntax tree node %T", node))
}

// sheetFor resolves an optional sheet qualifier, defaulting to the scope's
// sheet.
func (e *Evaluator) sheetFor(name string, sc scope) (int, error) {
	if name == "" {
		return sc.sheet, nil
	}
	idx, ok := e.matrix.SheetIndex(name)
	if !ok {
		return 0, raise(ErrorCodeRef, "unknown sheet %s", name)
	}
	return idx, nil
}

// resolveRange builds a 2-D result for a single-sheet range, or a list of
// 2-D results for a 3-D range.
func (e *Evaluator) resolveRange(r CellRange, sc scope) (Result, error) {
	if first, last, ok := r.SheetSpan(); ok {
		from, ok1 := e.matrix.SheetIndex(first)
		to, ok2 := e.matrix.SheetIndex(last)
		if !ok1 || !ok2 {
			return Result{}, raise(ErrorCodeRef, "unknown sheet span %s", r.SheetName)
		}
		if from > to {
			from, to = to, from
		}
		sheets := make([]Result, 0, to-from+1)
		for s := from; s <= to; s++ {
			m, err := e.rangeOnSheet(r.Bounds(s))
			if err != nil {
				return Result{}, err
			}
			sheets = append(sheets, m)
		}
		return ArrayResult(sheets...), nil
	}

	sheet, err := e.sheetFor(r.SheetName, sc)
	if err != nil {
		return Result{}, err
	}
	return e.rangeOnSheet(r.Bounds(sheet))
}

// rangeOnSheet reads every cell of b as rows of scalars. error cells are
// kept as values.
func (e *Evaluator) rangeOnSheet(b RangeAddress) (Result, error) {
	sm := e.matrix.Sheet(b.Sheet)
	if sm == nil {
		return Result{}, raise(ErrorCodeRef, "sheet index %d out of range", b.Sheet)
	}
	b = b.clamp(sm.MaxRow, sm.MaxCol)

	rows := make([]Result, 0, max(b.Rows(), 0))
	for row := b.StartRow; row <= b.EndRow; row++ {
		cells := make([]Result, 0, b.Columns())
		for col := b.StartColumn; col <= b.EndColumn; col++ {
			v, err := e.resolveCellScalar(b.Sheet, CellAddress{Column: col, Row: row})
			if err != nil {
				return Result{}, err
			}
			cells = append(cells, ScalarResult(v))
		}
		rows = append(rows, ArrayResult(cells...))
	}
	return ArrayResult(rows...), nil
}

// evalArray evaluates an array literal. constant elements, error constants
// included, are taken as-is; anything else is reduced to one scalar.
func (e *Evaluator) evalArray(n *ArrayNode, sc scope) (Result, error) {
	rows := make([]Result, len(n.Rows))
	for i, row := range n.Rows {
		cells := make([]Result, len(row))
		for j, elem := range row {
			if lit, ok := elem.(*LiteralNode); ok {
				cells[j] = ScalarResult(lit.Value)
				continue
			}
			r, err := e.eval(elem, sc)
			if err != nil {
				return Result{}, err
			}
			cells[j] = ScalarResult(toScalar(r))
		}
		rows[i] = ArrayResult(cells...)
	}
	return ArrayResult(rows...), nil
}

func (e *Evaluator) evalUnary(n *UnaryOpNode, sc scope) (Result, error) {
	operand, err := e.eval(n.Operand, sc)
	if err != nil {
		return Result{}, err
	}
	apply := func(x float64) float64 {
		switch n.Op {
		case UnaryOpMinus:
			return -x
		case UnaryOpPercent:
			return x / 100
		}
		return x
	}

	if !operand.IsArray() {
		x, err := toNumber(operand.Scalar())
		if err != nil {
			return Result{}, err
		}
		return ScalarResult(Number(apply(x))), nil
	}

	m, err := numericMatrix(operand)
	if err != nil {
		return Result{}, err
	}
	out := make([][]Scalar, len(m))
	for i, row := range m {
		out[i] = make([]Scalar, len(row))
		for j, x := range row {
			out[i][j] = Number(apply(x))
		}
	}
	return MatrixResult(out), nil
}

func (e *Evaluator) evalBinary(n *BinaryOpNode, sc scope) (Result, error) {
	left, err := e.eval(n.Left, sc)
	if err != nil {
		return Result{}, err
	}
	right, err := e.eval(n.Right, sc)
	if err != nil {
		return Result{}, err
	}

	if n.Op == BinOpConcat {
		l, err := toText(toScalar(left))
		if err != nil {
			return Result{}, err
		}
		r, err := toText(toScalar(right))
		if err != nil {
			return Result{}, err
		}
		return ScalarResult(String(l + r)), nil
	}
	return arithmetic(n.Op, left, right)
}

func (e *Evaluator) evalCompare(n *CompareNode, sc scope) (Result, error) {
	left, err := e.eval(n.Left, sc)
	if err != nil {
		return Result{}, err
	}
	right, err := e.eval(n.Right, sc)
	if err != nil {
		return Result{}, err
	}
	l, r := toScalar(left), toScalar(right)

	switch n.Op {
	case CmpEqual, CmpNotEqual:
		eq, err := equalScalars(l, r)
		if err != nil {
			return Result{}, err
		}
		return ScalarResult(Boolean(eq == (n.Op == CmpEqual))), nil
	}

	cmp, err := e.helpers.Compare(l, r)
	if err != nil {
		return Result{}, err
	}
	var out bool
	switch n.Op {
	case CmpLess:
		out = cmp < 0
	case CmpLessEqual:
		out = cmp <= 0
	case CmpGreater:
		out = cmp > 0
	case CmpGreaterEqual:
		out = cmp >= 0
	}
	return ScalarResult(Boolean(out)), nil
}

// callFunction dispatches to the registry. lazy functions get the raw
// argument nodes; eager ones get every argument evaluated left to right.
func (e *Evaluator) callFunction(n *FunctionCallNode, sc scope) (Result, error) {
	fn, err := e.lookupFunction(n.Name)
	if err != nil {
		return Result{}, err
	}

	var r Result
	if fn.Lazy != nil {
		r, err = fn.Lazy(n.Args, e.lazyContext(sc))
	} else if fn.Eager != nil {
		args := make([]Result, len(n.Args))
		for i, arg := range n.Args {
			args[i], err = e.eval(arg, sc)
			if err != nil {
				return Result{}, err
			}
		}
		r, err = fn.Eager(args, e.helpers)
	} else {
		return Result{}, NewApplicationError(Internal, fmt.Sprintf("function %s has no implementation", fn.Name))
	}
	if err != nil {
		return Result{}, err
	}
	if !r.IsArray() {
		if err := r.Scalar().Err(); err != nil {
			return Result{}, err
		}
	}
	return r, nil
}

func (e *Evaluator) lazyContext(sc scope) *LazyContext {
	return &LazyContext{
		Evaluate: func(node Node) (Result, error) {
			return e.eval(node, sc)
		},
		Helpers:        e.helpers,
		ParseReference: e.parseReference,
		Origin:         sc.origin,
		Sheet:          sc.sheet,
		DateSystem:     e.dateSystem,
	}
}

// parseReference uses the configured parser when it understands bare
// references and the default parser otherwise.
func (e *Evaluator) parseReference(text string) (Node, error) {
	if rp, ok := e.parser.(ReferenceParser); ok {
		return rp.ParseReference(text)
	}
	return NewParser().ParseReference(text)
}

// lookupFunction checks the compatibility namespace before the standard
// one. a miss is a configuration problem, not a formula error.
func (e *Evaluator) lookupFunction(name string) (*Function, error) {
	normalized := normalizeFunctionName(name)
	if fn, ok := e.registry.LookupExtended(normalized); ok {
		return fn, nil
	}
	if fn, ok := e.registry.Lookup(normalized); ok {
		return fn, nil
	}

	err := &UnknownFunctionError{Name: name, Suggestions: suggestFunctions(normalized, e.registry.Names())}
	e.logger.Debug().
		Str("function", name).
		Strs("suggestions", err.Suggestions).
		Msg("unknown function")
	return nil, err
}

// suggestFunctions returns up to three registered names close to name.
func suggestFunctions(name string, names []string) []string {
	ranks := fuzzy.RankFindNormalizedFold(name, names)
	if len(ranks) == 0 {
		// fall back to names that contain no more than one typo
		for _, candidate := range names {
			if fuzzy.LevenshteinDistance(name, candidate) <= 1 {
				ranks = append(ranks, fuzzy.Rank{Target: candidate, Distance: 1})
			}
		}
	}
	sort.Sort(ranks)
	out := make([]string, 0, 3)
	for _, rank := range ranks {
		if len(out) == 3 {
			break
		}
		out = append(out, rank.Target)
	}
	return out
}
