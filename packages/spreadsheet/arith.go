package spreadsheet

import (
	"math"
)

// arithmetic applies + - * / ^ to two results. scalars combine directly;
// arrays are normalized to numeric matrices and combined element-wise, with
// a 1x1 operand broadcast over the other.
func arithmetic(op BinaryOp, left, right Result) (Result, error) {
	if !left.IsArray() && !right.IsArray() {
		a, err := toNumber(left.Scalar())
		if err != nil {
			return Result{}, err
		}
		b, err := toNumber(right.Scalar())
		if err != nil {
			return Result{}, err
		}
		s, err := applyBinary(op, a, b)
		if err != nil {
			return Result{}, err
		}
		return ScalarResult(s), nil
	}

	lm, err := numericMatrix(left)
	if err != nil {
		return Result{}, err
	}
	rm, err := numericMatrix(right)
	if err != nil {
		return Result{}, err
	}

	lUnit, rUnit := isUnit(lm), isUnit(rm)
	if lUnit && rUnit {
		s, err := applyBinary(op, lm[0][0], rm[0][0])
		if err != nil {
			return Result{}, err
		}
		return ScalarResult(s), nil
	}

	rows, cols := len(lm), len(lm[0])
	if lUnit {
		rows, cols = len(rm), len(rm[0])
	} else if !rUnit && (len(rm) != rows || len(rm[0]) != cols) {
		return Result{}, raise(ErrorCodeValue, "array shapes %dx%d and %dx%d do not match", rows, cols, len(rm), len(rm[0]))
	}

	out := make([][]Scalar, rows)
	for i := range rows {
		out[i] = make([]Scalar, cols)
		for j := range cols {
			a, b := element(lm, i, j), element(rm, i, j)
			s, err := applyBinary(op, a, b)
			if err != nil {
				se, ok := asSpreadsheetError(err)
				if !ok {
					return Result{}, err
				}
				s = ErrorValue(se.ErrorCode)
			}
			out[i][j] = s
		}
	}
	return MatrixResult(out), nil
}

// applyBinary computes one arithmetic step on numbers
func applyBinary(op BinaryOp, a, b float64) (Scalar, error) {
	switch op {
	case BinOpAdd:
		return finite(a + b)
	case BinOpSubtract:
		return finite(a - b)
	case BinOpMultiply:
		return finite(a * b)
	case BinOpDivide:
		if b == 0 {
			return Scalar{}, raise(ErrorCodeDiv0, "division by zero")
		}
		return finite(a / b)
	case BinOpPower:
		if a == 0 && b == 0 {
			return Scalar{}, raise(ErrorCodeNum, "zero to the power of zero")
		}
		if a == 0 && b < 0 {
			return Scalar{}, raise(ErrorCodeDiv0, "zero to a negative power")
		}
		return finite(math.Pow(a, b))
	}
	return Scalar{}, NewApplicationError(Internal, "unsupported arithmetic operator "+op.String())
}

// numericMatrix converts a result into a rectangular matrix of numbers. a
// scalar becomes 1x1 and a flat list a single row. ragged or empty input
// and any element that is not numeric yield #VALUE!.
func numericMatrix(r Result) ([][]float64, error) {
	m := r.Matrix()
	if len(m) == 0 || len(m[0]) == 0 {
		return nil, raise(ErrorCodeValue, "empty array in arithmetic")
	}
	cols := len(m[0])
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != cols {
			return nil, raise(ErrorCodeValue, "ragged array in arithmetic")
		}
		out[i] = make([]float64, cols)
		for j, s := range row {
			n, err := toNumber(s)
			if err != nil {
				return nil, err
			}
			out[i][j] = n
		}
	}
	return out, nil
}

func isUnit(m [][]float64) bool {
	return len(m) == 1 && len(m[0]) == 1
}

// element reads m at (i, j), broadcasting a 1x1 matrix
func element(m [][]float64, i, j int) float64 {
	if isUnit(m) {
		return m[0][0]
	}
	return m[i][j]
}
