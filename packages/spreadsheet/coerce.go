package spreadsheet

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Helpers centralizes every coercion rule. the evaluator uses it for
// operators and hands the same instance to each function call.
type Helpers struct {
	collator *collate.Collator
}

// NewHelpers builds helpers whose text ordering follows the given locale.
func NewHelpers(tag language.Tag) *Helpers {
	return &Helpers{collator: collate.New(tag, collate.IgnoreCase)}
}

// Flatten returns every scalar of every argument in order.
func (h *Helpers) Flatten(args ...Result) []Scalar {
	var out []Scalar
	for _, arg := range args {
		for s := range arg.Scalars() {
			out = append(out, s)
		}
	}
	return out
}

// ToScalar reduces a result to a single value: the first element of an
// array, or empty for an empty array.
func (h *Helpers) ToScalar(r Result) Scalar { return toScalar(r) }

// ToNumber coerces a scalar to a number. empty is 0, booleans are 1/0 and
// text must parse as a number. error scalars are returned as errors.
func (h *Helpers) ToNumber(s Scalar) (float64, error) { return toNumber(s) }

// ToText coerces a scalar to text.
func (h *Helpers) ToText(s Scalar) (string, error) { return toText(s) }

// ToBoolean coerces a scalar to a boolean. numbers are true when non-zero,
// text must be TRUE or FALSE.
func (h *Helpers) ToBoolean(s Scalar) (bool, error) { return toBoolean(s) }

// Equal is the general equality used by = and <>.
func (h *Helpers) Equal(a, b Scalar) (bool, error) { return equalScalars(a, b) }

// CompareText orders two strings with the configured locale, ignoring case.
func (h *Helpers) CompareText(a, b string) int {
	return h.collator.CompareString(a, b)
}

// Compare orders two scalars. both must be numbers or both text; anything
// else, including empty and booleans, is #VALUE!.
func (h *Helpers) Compare(a, b Scalar) (int, error) {
	if err := a.Err(); err != nil {
		return 0, err
	}
	if err := b.Err(); err != nil {
		return 0, err
	}
	if a.kind != b.kind {
		return 0, raise(ErrorCodeValue, "cannot compare %s with %s", a.kind, b.kind)
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1, nil
		case a.num > b.num:
			return 1, nil
		}
		return 0, nil
	case KindString:
		return h.CompareText(a.str, b.str), nil
	}
	return 0, raise(ErrorCodeValue, "cannot order %s values", a.kind)
}

func toScalar(r Result) Scalar {
	for s := range r.Scalars() {
		return s
	}
	return Empty()
}

// toNumber converts value to number, failing with #VALUE! when text does
// not parse
func toNumber(s Scalar) (float64, error) {
	switch s.kind {
	case KindNumber:
		return s.num, nil
	case KindBoolean:
		if s.b {
			return 1, nil
		}
		return 0, nil
	case KindEmpty:
		return 0, nil
	case KindString:
		text := strings.TrimSpace(s.str)
		if text == "" {
			return 0, raise(ErrorCodeValue, "cannot convert empty text to a number")
		}
		percent := strings.HasSuffix(text, "%")
		if percent {
			text = strings.TrimSpace(strings.TrimSuffix(text, "%"))
		}
		num, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsInf(num, 0) || math.IsNaN(num) {
			return 0, raise(ErrorCodeValue, "cannot convert %q to a number", s.str)
		}
		if percent {
			num /= 100
		}
		return num, nil
	}
	return 0, s.Err()
}

// toText converts value to text
func toText(s Scalar) (string, error) {
	if s.kind == KindError {
		return "", s.Err()
	}
	return s.String(), nil
}

func toBoolean(s Scalar) (bool, error) {
	switch s.kind {
	case KindBoolean:
		return s.b, nil
	case KindNumber:
		return s.num != 0, nil
	case KindEmpty:
		return false, nil
	case KindString:
		switch strings.ToUpper(strings.TrimSpace(s.str)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, raise(ErrorCodeValue, "cannot convert %q to a boolean", s.str)
	}
	return false, s.Err()
}

// equalScalars never coerces across kinds: numbers compare numerically, text
// case-insensitively and booleans by value. empty equals 0, "" and FALSE.
// an error operand is returned as the error.
func equalScalars(a, b Scalar) (bool, error) {
	if err := a.Err(); err != nil {
		return false, err
	}
	if err := b.Err(); err != nil {
		return false, err
	}
	if a.kind == KindEmpty {
		a, b = b, a
	}
	if b.kind == KindEmpty {
		switch a.kind {
		case KindEmpty:
			return true, nil
		case KindNumber:
			return a.num == 0, nil
		case KindString:
			return a.str == "", nil
		case KindBoolean:
			return !a.b, nil
		}
	}
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case KindNumber:
		return a.num == b.num, nil
	case KindString:
		return strings.EqualFold(a.str, b.str), nil
	}
	return a.b == b.b, nil
}

// formatNumber renders a number the way the general format does: integers
// without a fraction, everything else with 15 significant digits.
func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'G', 15, 64)
}

// finite turns NaN and infinities into #NUM!.
func finite(n float64) (Scalar, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Scalar{}, raise(ErrorCodeNum, "numeric result out of range")
	}
	return Number(n), nil
}
