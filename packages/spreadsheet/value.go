package spreadsheet

import (
	"iter"
	"strings"
)

// ScalarKind tags the variant held by a Scalar.
type ScalarKind uint8

const (
	KindEmpty ScalarKind = iota
	KindNumber
	KindString
	KindBoolean
	KindError
)

func (k ScalarKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Scalar is the externally observable unit value of a formula: empty, a
// number, text, a boolean or an error code. the zero value is empty.
type Scalar struct {
	kind ScalarKind
	num  float64
	str  string
	b    bool
	code ErrorCode
}

// Empty returns the empty scalar (a blank cell).
func Empty() Scalar { return Scalar{} }

// Number returns a numeric scalar.
func Number(n float64) Scalar { return Scalar{kind: KindNumber, num: n} }

// String returns a text scalar.
func String(s string) Scalar { return Scalar{kind: KindString, str: s} }

// Boolean returns a boolean scalar.
func Boolean(b bool) Scalar { return Scalar{kind: KindBoolean, b: b} }

// ErrorValue returns an error scalar carrying code.
func ErrorValue(code ErrorCode) Scalar { return Scalar{kind: KindError, code: code} }

func (s Scalar) Kind() ScalarKind { return s.kind }
func (s Scalar) IsEmpty() bool    { return s.kind == KindEmpty }
func (s Scalar) IsError() bool    { return s.kind == KindError }

// Num returns the number held by a numeric scalar, or 0.
func (s Scalar) Num() float64 { return s.num }

// Str returns the text held by a text scalar, or "".
func (s Scalar) Str() string { return s.str }

// Bool returns the value held by a boolean scalar, or false.
func (s Scalar) Bool() bool { return s.b }

// Code returns the error code held by an error scalar, or 0.
func (s Scalar) Code() ErrorCode { return s.code }

// Err converts an error scalar into a raisable error, nil otherwise.
func (s Scalar) Err() error {
	if s.kind != KindError {
		return nil
	}
	return NewSpreadsheetError(s.code, "")
}

// Any returns the scalar as a plain Go value: nil, float64, string, bool or
// ErrorCode.
func (s Scalar) Any() any {
	switch s.kind {
	case KindNumber:
		return s.num
	case KindString:
		return s.str
	case KindBoolean:
		return s.b
	case KindError:
		return s.code
	}
	return nil
}

// String renders the scalar the way a cell would display it in the
// general number format.
func (s Scalar) String() string {
	switch s.kind {
	case KindNumber:
		return formatNumber(s.num)
	case KindString:
		return s.str
	case KindBoolean:
		if s.b {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return s.code.String()
	}
	return ""
}

// Result is the value of an evaluated expression: either a single Scalar or
// an ordered list of Results. a 2-D matrix is a list of row lists, a 3-D
// range is a list of 2-D matrices.
type Result struct {
	scalar Scalar
	items  []Result
	array  bool
}

// ScalarResult wraps a scalar.
func ScalarResult(s Scalar) Result { return Result{scalar: s} }

// ArrayResult builds a list result. ArrayResult() is an empty array.
func ArrayResult(items ...Result) Result {
	if items == nil {
		items = []Result{}
	}
	return Result{items: items, array: true}
}

// MatrixResult builds a 2-D result from rows of scalars.
func MatrixResult(rows [][]Scalar) Result {
	out := make([]Result, len(rows))
	for i, row := range rows {
		cells := make([]Result, len(row))
		for j, s := range row {
			cells[j] = ScalarResult(s)
		}
		out[i] = ArrayResult(cells...)
	}
	return ArrayResult(out...)
}

func (r Result) IsArray() bool { return r.array }

// Scalar returns the wrapped scalar of a non-array result.
func (r Result) Scalar() Scalar { return r.scalar }

// Items returns the elements of an array result.
func (r Result) Items() []Result { return r.items }

// Scalars iterates every scalar in the result depth-first, left to right.
func (r Result) Scalars() iter.Seq[Scalar] {
	return func(yield func(Scalar) bool) {
		r.walk(yield)
	}
}

func (r Result) walk(yield func(Scalar) bool) bool {
	if !r.array {
		return yield(r.scalar)
	}
	for _, item := range r.items {
		if !item.walk(yield) {
			return false
		}
	}
	return true
}

// Matrix returns the result as rows of scalars. a bare scalar becomes 1x1, a
// flat list becomes a single row and nested elements deeper than two levels
// are reduced to their first scalar.
func (r Result) Matrix() [][]Scalar {
	if !r.array {
		return [][]Scalar{{r.scalar}}
	}
	if !r.isNested() {
		row := make([]Scalar, len(r.items))
		for i, item := range r.items {
			row[i] = item.scalar
		}
		return [][]Scalar{row}
	}
	rows := make([][]Scalar, len(r.items))
	for i, item := range r.items {
		if !item.array {
			rows[i] = []Scalar{item.scalar}
			continue
		}
		row := make([]Scalar, len(item.items))
		for j, cell := range item.items {
			row[j] = toScalar(cell)
		}
		rows[i] = row
	}
	return rows
}

// isNested reports whether any element of an array is itself an array.
func (r Result) isNested() bool {
	for _, item := range r.items {
		if item.array {
			return true
		}
	}
	return false
}

// String renders arrays with Excel's array-literal punctuation.
func (r Result) String() string {
	if !r.array {
		return r.scalar.String()
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, row := range r.Matrix() {
		if i > 0 {
			sb.WriteByte(';')
		}
		for j, s := range row {
			if j > 0 {
				sb.WriteByte(',')
			}
			if s.kind == KindString {
				sb.WriteString(`"` + strings.ReplaceAll(s.str, `"`, `""`) + `"`)
			} else {
				sb.WriteString(s.String())
			}
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
