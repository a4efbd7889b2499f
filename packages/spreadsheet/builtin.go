package spreadsheet

import (
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions contains the default spreadsheet functions
type BuiltInFunctions struct {
	clock Clock
	rng   RandomGenerator
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(&WallClock{}, &DefaultRandomGenerator{})
}

// NewBuiltInFunctions creates a BuiltInFunctions with the given time and
// random sources
func NewBuiltInFunctions(clock Clock, rng RandomGenerator) *BuiltInFunctions {
	return &BuiltInFunctions{clock: clock, rng: rng}
}

// NewDefaultRegistry returns a registry holding the default functions
func NewDefaultRegistry() *FunctionRegistry {
	return NewDefaultBuiltInFunctions().Registry()
}

// Registry registers every function in a new registry. CONCAT and IFS live
// in the compatibility namespace, as they are written with an _xlfn. prefix
// in files.
func (bf *BuiltInFunctions) Registry() *FunctionRegistry {
	eager := map[string]EagerFunc{
		"SUM":         bf.SUM,
		"AVERAGE":     bf.AVERAGE,
		"AVERAGEA":    bf.AVERAGEA,
		"COUNT":       bf.COUNT,
		"COUNTA":      bf.COUNTA,
		"MAX":         bf.MAX,
		"MIN":         bf.MIN,
		"MEDIAN":      bf.MEDIAN,
		"MODE":        bf.MODE,
		"AND":         bf.AND,
		"OR":          bf.OR,
		"NOT":         bf.NOT,
		"CONCATENATE": bf.CONCATENATE,
		"LEN":         bf.LEN,
		"UPPER":       bf.UPPER,
		"LOWER":       bf.LOWER,
		"TRIM":        bf.TRIM,
		"ABS":         bf.ABS,
		"ROUND":       bf.ROUND,
		"FLOOR":       bf.FLOOR,
		"CEILING":     bf.CEILING,
		"SQRT":        bf.SQRT,
		"POWER":       bf.POWER,
		"MOD":         bf.MOD,
		"PI":          bf.PI,
		"ROWS":        bf.ROWS,
		"COLUMNS":     bf.COLUMNS,
		"RAND":        bf.RAND,
	}
	lazy := map[string]LazyFunc{
		"IF":       bf.IF,
		"IFERROR":  bf.IFERROR,
		"INDIRECT": bf.INDIRECT,
		"NOW":      bf.NOW,
		"TODAY":    bf.TODAY,
	}

	r := NewFunctionRegistry()
	for name, fn := range eager {
		r.Register(&Function{Name: name, Eager: fn})
	}
	for name, fn := range lazy {
		r.Register(&Function{Name: name, Lazy: fn})
	}
	r.RegisterExtended(&Function{Name: "CONCAT", Eager: bf.CONCAT})
	r.RegisterExtended(&Function{Name: "IFS", Lazy: bf.IFS})
	return r
}

func arity(name string, args int, minArgs, maxArgs int) error {
	if args < minArgs || args > maxArgs {
		return raise(ErrorCodeNA, "%s takes %d to %d arguments, got %d", name, minArgs, maxArgs, args)
	}
	return nil
}

// eachNumber visits the numbers of a function's arguments. values read from
// ranges and arrays are only counted when they are numbers and their errors
// propagate; direct arguments are coerced.
func eachNumber(args []Result, visit func(float64)) error {
	for _, arg := range args {
		if !arg.IsArray() {
			num, err := toNumber(arg.Scalar())
			if err != nil {
				return err
			}
			visit(num)
			continue
		}
		for value := range arg.Scalars() {
			if err := value.Err(); err != nil {
				return err
			}
			if value.Kind() == KindNumber {
				visit(value.Num())
			}
		}
	}
	return nil
}

// scalarArg reduces a single-value argument and raises its error
func scalarArg(arg Result) (Scalar, error) {
	s := toScalar(arg)
	if err := s.Err(); err != nil {
		return Scalar{}, err
	}
	return s, nil
}

func numberArg(arg Result) (float64, error) {
	s, err := scalarArg(arg)
	if err != nil {
		return 0, err
	}
	return toNumber(s)
}

func textArg(arg Result) (string, error) {
	s, err := scalarArg(arg)
	if err != nil {
		return "", err
	}
	return toText(s)
}

func numberResult(n float64) (Result, error) {
	s, err := finite(n)
	if err != nil {
		return Result{}, err
	}
	return ScalarResult(s), nil
}

func (bf *BuiltInFunctions) SUM(args []Result, h *Helpers) (Result, error) {
	sum := 0.0
	if err := eachNumber(args, func(n float64) { sum += n }); err != nil {
		return Result{}, err
	}
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(sum, 'f', 15, 64), 64)
	return numberResult(rounded)
}

func (bf *BuiltInFunctions) AVERAGE(args []Result, h *Helpers) (Result, error) {
	sum := 0.0
	count := 0
	err := eachNumber(args, func(n float64) {
		sum += n
		count++
	})
	if err != nil {
		return Result{}, err
	}
	if count == 0 {
		return Result{}, raise(ErrorCodeDiv0, "AVERAGE has no numeric values")
	}
	return numberResult(sum / float64(count))
}

func (bf *BuiltInFunctions) AVERAGEA(args []Result, h *Helpers) (Result, error) {
	sum := 0.0
	count := 0
	for _, value := range h.Flatten(args...) {
		// AVERAGEA includes all non-empty values in the count but only
		// numbers and booleans contribute to the sum
		switch value.Kind() {
		case KindError:
			return Result{}, value.Err()
		case KindNumber:
			sum += value.Num()
			count++
		case KindBoolean:
			if value.Bool() {
				sum++
			}
			count++
		case KindString:
			count++
		}
	}
	if count == 0 {
		return Result{}, raise(ErrorCodeDiv0, "AVERAGEA has no values")
	}
	return numberResult(sum / float64(count))
}

// COUNT counts numbers. errors inside ranges are skipped rather than
// propagated
func (bf *BuiltInFunctions) COUNT(args []Result, h *Helpers) (Result, error) {
	count := 0
	for _, arg := range args {
		if !arg.IsArray() {
			if _, err := toNumber(arg.Scalar()); err == nil && !arg.Scalar().IsEmpty() {
				count++
			}
			continue
		}
		for value := range arg.Scalars() {
			if value.Kind() == KindNumber {
				count++
			}
		}
	}
	return ScalarResult(Number(float64(count))), nil
}

// COUNTA counts every non-empty value, errors included
func (bf *BuiltInFunctions) COUNTA(args []Result, h *Helpers) (Result, error) {
	count := 0
	for _, value := range h.Flatten(args...) {
		if !value.IsEmpty() {
			count++
		}
	}
	return ScalarResult(Number(float64(count))), nil
}

func (bf *BuiltInFunctions) MAX(args []Result, h *Helpers) (Result, error) {
	best := math.Inf(-1)
	err := eachNumber(args, func(n float64) { best = math.Max(best, n) })
	if err != nil {
		return Result{}, err
	}
	if math.IsInf(best, -1) {
		return ScalarResult(Number(0)), nil
	}
	return ScalarResult(Number(best)), nil
}

func (bf *BuiltInFunctions) MIN(args []Result, h *Helpers) (Result, error) {
	best := math.Inf(1)
	err := eachNumber(args, func(n float64) { best = math.Min(best, n) })
	if err != nil {
		return Result{}, err
	}
	if math.IsInf(best, 1) {
		return ScalarResult(Number(0)), nil
	}
	return ScalarResult(Number(best)), nil
}

func (bf *BuiltInFunctions) MEDIAN(args []Result, h *Helpers) (Result, error) {
	var values []float64
	if err := eachNumber(args, func(n float64) { values = append(values, n) }); err != nil {
		return Result{}, err
	}
	if len(values) == 0 {
		return Result{}, raise(ErrorCodeNum, "MEDIAN has no numeric values")
	}
	slices.Sort(values)

	mid := len(values) / 2
	if len(values)%2 == 0 {
		return ScalarResult(Number((values[mid-1] + values[mid]) / 2)), nil
	}
	return ScalarResult(Number(values[mid])), nil
}

// MODE returns the most frequent number, the smallest one on ties
func (bf *BuiltInFunctions) MODE(args []Result, h *Helpers) (Result, error) {
	frequency := make(map[float64]int)
	if err := eachNumber(args, func(n float64) { frequency[n]++ }); err != nil {
		return Result{}, err
	}
	if len(frequency) == 0 {
		return Result{}, raise(ErrorCodeNum, "MODE has no numeric values")
	}

	maxFreq := 0
	for _, freq := range frequency {
		maxFreq = max(maxFreq, freq)
	}
	if maxFreq == 1 {
		return Result{}, raise(ErrorCodeNA, "MODE: no value appears more than once")
	}
	var modes []float64
	for value, freq := range frequency {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	return ScalarResult(Number(slices.Min(modes))), nil
}

func (bf *BuiltInFunctions) AND(args []Result, h *Helpers) (Result, error) {
	if err := arity("AND", len(args), 1, 255); err != nil {
		return Result{}, err
	}
	for _, value := range h.Flatten(args...) {
		b, err := toBoolean(value)
		if err != nil {
			return Result{}, err
		}
		if !b {
			return ScalarResult(Boolean(false)), nil
		}
	}
	return ScalarResult(Boolean(true)), nil
}

func (bf *BuiltInFunctions) OR(args []Result, h *Helpers) (Result, error) {
	if err := arity("OR", len(args), 1, 255); err != nil {
		return Result{}, err
	}
	out := false
	for _, value := range h.Flatten(args...) {
		b, err := toBoolean(value)
		if err != nil {
			return Result{}, err
		}
		out = out || b
	}
	return ScalarResult(Boolean(out)), nil
}

func (bf *BuiltInFunctions) NOT(args []Result, h *Helpers) (Result, error) {
	if err := arity("NOT", len(args), 1, 1); err != nil {
		return Result{}, err
	}
	s, err := scalarArg(args[0])
	if err != nil {
		return Result{}, err
	}
	b, err := toBoolean(s)
	if err != nil {
		return Result{}, err
	}
	return ScalarResult(Boolean(!b)), nil
}

// CONCATENATE joins single values; a range argument contributes its first
// cell
func (bf *BuiltInFunctions) CONCATENATE(args []Result, h *Helpers) (Result, error) {
	var result strings.Builder
	for _, arg := range args {
		text, err := textArg(arg)
		if err != nil {
			return Result{}, err
		}
		result.WriteString(text)
	}
	return ScalarResult(String(result.String())), nil
}

// CONCAT joins every value of every argument, ranges included
func (bf *BuiltInFunctions) CONCAT(args []Result, h *Helpers) (Result, error) {
	var result strings.Builder
	for _, value := range h.Flatten(args...) {
		text, err := toText(value)
		if err != nil {
			return Result{}, err
		}
		result.WriteString(text)
	}
	return ScalarResult(String(result.String())), nil
}

func (bf *BuiltInFunctions) LEN(args []Result, h *Helpers) (Result, error) {
	if err := arity("LEN", len(args), 1, 1); err != nil {
		return Result{}, err
	}
	text, err := textArg(args[0])
	if err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(float64(utf8.RuneCountInString(text)))), nil
}

func (bf *BuiltInFunctions) UPPER(args []Result, h *Helpers) (Result, error) {
	return bf.mapText("UPPER", args, strings.ToUpper)
}

func (bf *BuiltInFunctions) LOWER(args []Result, h *Helpers) (Result, error) {
	return bf.mapText("LOWER", args, strings.ToLower)
}

// TRIM removes leading and trailing spaces and collapses inner runs
func (bf *BuiltInFunctions) TRIM(args []Result, h *Helpers) (Result, error) {
	return bf.mapText("TRIM", args, func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	})
}

func (bf *BuiltInFunctions) mapText(name string, args []Result, fn func(string) string) (Result, error) {
	if err := arity(name, len(args), 1, 1); err != nil {
		return Result{}, err
	}
	text, err := textArg(args[0])
	if err != nil {
		return Result{}, err
	}
	return ScalarResult(String(fn(text))), nil
}

func (bf *BuiltInFunctions) mapNumber(name string, args []Result, fn func(float64) (float64, error)) (Result, error) {
	if err := arity(name, len(args), 1, 1); err != nil {
		return Result{}, err
	}
	num, err := numberArg(args[0])
	if err != nil {
		return Result{}, err
	}
	out, err := fn(num)
	if err != nil {
		return Result{}, err
	}
	return numberResult(out)
}

func (bf *BuiltInFunctions) ABS(args []Result, h *Helpers) (Result, error) {
	return bf.mapNumber("ABS", args, func(n float64) (float64, error) { return math.Abs(n), nil })
}

func (bf *BuiltInFunctions) FLOOR(args []Result, h *Helpers) (Result, error) {
	return bf.mapNumber("FLOOR", args, func(n float64) (float64, error) { return math.Floor(n), nil })
}

func (bf *BuiltInFunctions) CEILING(args []Result, h *Helpers) (Result, error) {
	return bf.mapNumber("CEILING", args, func(n float64) (float64, error) { return math.Ceil(n), nil })
}

func (bf *BuiltInFunctions) SQRT(args []Result, h *Helpers) (Result, error) {
	return bf.mapNumber("SQRT", args, func(n float64) (float64, error) {
		if n < 0 {
			return 0, raise(ErrorCodeNum, "SQRT requires a non-negative argument")
		}
		return math.Sqrt(n), nil
	})
}

// ROUND rounds half away from zero to the given number of places
func (bf *BuiltInFunctions) ROUND(args []Result, h *Helpers) (Result, error) {
	if err := arity("ROUND", len(args), 1, 2); err != nil {
		return Result{}, err
	}
	num, err := numberArg(args[0])
	if err != nil {
		return Result{}, err
	}
	places := 0.0
	if len(args) == 2 {
		if places, err = numberArg(args[1]); err != nil {
			return Result{}, err
		}
	}
	multiplier := math.Pow(10, math.Trunc(places))
	return numberResult(math.Round(num*multiplier) / multiplier)
}

func (bf *BuiltInFunctions) POWER(args []Result, h *Helpers) (Result, error) {
	if err := arity("POWER", len(args), 2, 2); err != nil {
		return Result{}, err
	}
	return arithmetic(BinOpPower, ScalarResult(toScalar(args[0])), ScalarResult(toScalar(args[1])))
}

// MOD takes the sign of the divisor
func (bf *BuiltInFunctions) MOD(args []Result, h *Helpers) (Result, error) {
	if err := arity("MOD", len(args), 2, 2); err != nil {
		return Result{}, err
	}
	dividend, err := numberArg(args[0])
	if err != nil {
		return Result{}, err
	}
	divisor, err := numberArg(args[1])
	if err != nil {
		return Result{}, err
	}
	if divisor == 0 {
		return Result{}, raise(ErrorCodeDiv0, "division by zero")
	}
	return numberResult(dividend - divisor*math.Floor(dividend/divisor))
}

func (bf *BuiltInFunctions) PI(args []Result, h *Helpers) (Result, error) {
	if err := arity("PI", len(args), 0, 0); err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(math.Pi)), nil
}

func (bf *BuiltInFunctions) ROWS(args []Result, h *Helpers) (Result, error) {
	if err := arity("ROWS", len(args), 1, 1); err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(float64(len(args[0].Matrix())))), nil
}

func (bf *BuiltInFunctions) COLUMNS(args []Result, h *Helpers) (Result, error) {
	if err := arity("COLUMNS", len(args), 1, 1); err != nil {
		return Result{}, err
	}
	m := args[0].Matrix()
	if len(m) == 0 {
		return ScalarResult(Number(0)), nil
	}
	return ScalarResult(Number(float64(len(m[0])))), nil
}

func (bf *BuiltInFunctions) RAND(args []Result, h *Helpers) (Result, error) {
	if err := arity("RAND", len(args), 0, 0); err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(bf.rng.Float64())), nil
}

// IF only evaluates the branch it selects. a missing else branch is FALSE
func (bf *BuiltInFunctions) IF(args []Node, ctx *LazyContext) (Result, error) {
	if err := arity("IF", len(args), 2, 3); err != nil {
		return Result{}, err
	}
	ok, err := evalCondition(args[0], ctx)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return ctx.Evaluate(args[1])
	}
	if len(args) == 3 {
		return ctx.Evaluate(args[2])
	}
	return ScalarResult(Boolean(false)), nil
}

// IFS returns the value paired with the first true condition, #N/A when
// none holds
func (bf *BuiltInFunctions) IFS(args []Node, ctx *LazyContext) (Result, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return Result{}, raise(ErrorCodeNA, "IFS takes condition and value pairs")
	}
	for i := 0; i < len(args); i += 2 {
		ok, err := evalCondition(args[i], ctx)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return ctx.Evaluate(args[i+1])
		}
	}
	return Result{}, raise(ErrorCodeNA, "no IFS condition is true")
}

func evalCondition(node Node, ctx *LazyContext) (bool, error) {
	r, err := ctx.Evaluate(node)
	if err != nil {
		return false, err
	}
	s, err := scalarArg(r)
	if err != nil {
		return false, err
	}
	return toBoolean(s)
}

// IFERROR replaces a formula error raised by its first argument with the
// second argument. application errors are not caught
func (bf *BuiltInFunctions) IFERROR(args []Node, ctx *LazyContext) (Result, error) {
	if err := arity("IFERROR", len(args), 2, 2); err != nil {
		return Result{}, err
	}
	r, err := ctx.Evaluate(args[0])
	if err == nil && !r.IsArray() && r.Scalar().IsError() {
		err = r.Scalar().Err()
	}
	if err == nil {
		return r, nil
	}
	if _, ok := asSpreadsheetError(err); !ok {
		return Result{}, err
	}
	return ctx.Evaluate(args[1])
}

// INDIRECT evaluates reference text relative to the calling sheet
func (bf *BuiltInFunctions) INDIRECT(args []Node, ctx *LazyContext) (Result, error) {
	if err := arity("INDIRECT", len(args), 1, 2); err != nil {
		return Result{}, err
	}
	r, err := ctx.Evaluate(args[0])
	if err != nil {
		return Result{}, err
	}
	text, err := textArg(r)
	if err != nil {
		return Result{}, err
	}
	node, err := ctx.ParseReference(text)
	if err != nil {
		return Result{}, raise(ErrorCodeRef, "INDIRECT: %s is not a reference", text)
	}
	return ctx.Evaluate(node)
}

// serial date epochs: day 0 of each date system
var (
	epoch1900 = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)
)

const msPerDay = 86400000

// serialDate converts a wall time into a serial date of the workbook's date
// system, keeping the local clock reading
func serialDate(t time.Time, ds DateSystem) float64 {
	epoch := epoch1900
	if ds == DateSystem1904 {
		epoch = epoch1904
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return float64(wall.Sub(epoch).Milliseconds()) / msPerDay
}

func (bf *BuiltInFunctions) NOW(args []Node, ctx *LazyContext) (Result, error) {
	if err := arity("NOW", len(args), 0, 0); err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(serialDate(bf.clock.Now(), ctx.DateSystem))), nil
}

func (bf *BuiltInFunctions) TODAY(args []Node, ctx *LazyContext) (Result, error) {
	if err := arity("TODAY", len(args), 0, 0); err != nil {
		return Result{}, err
	}
	return ScalarResult(Number(math.Floor(serialDate(bf.clock.Now(), ctx.DateSystem)))), nil
}
