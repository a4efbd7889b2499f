package spreadsheet

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRegistry wraps the default registry with TRACK, which returns its
// argument and counts how often it ran, and TOTAL, a plain eager sum
func countingRegistry(calls *int) *FunctionRegistry {
	r := NewDefaultRegistry()
	r.Register(&Function{Name: "TRACK", Eager: func(args []Result, h *Helpers) (Result, error) {
		*calls++
		if len(args) == 0 {
			return ScalarResult(Empty()), nil
		}
		return args[0], nil
	}})
	r.Register(&Function{Name: "TOTAL", Eager: func(args []Result, h *Helpers) (Result, error) {
		sum := 0.0
		for _, s := range h.Flatten(args...) {
			n, err := h.ToNumber(s)
			if err != nil {
				return Result{}, err
			}
			sum += n
		}
		return ScalarResult(Number(sum)), nil
	}})
	return r
}

func TestLexingAndParsing(t *testing.T) {
	t.Run("ValidFormulas", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Basic arithmetic").
			Set("A1", "=1+2").
			AssertCellEq("A1", 3).
			End()

		NewEvaluatorTestCase(t, "Cell reference").
			Set("A1", 10).
			Set("A2", "=A1").
			AssertCellEq("A2", 10).
			End()

		NewEvaluatorTestCase(t, "Function call").
			Set("A1", 5).
			Set("A2", 10).
			Set("A3", "=SUM(A1:A2)").
			AssertCellEq("A3", 15).
			End()

		NewEvaluatorTestCase(t, "Whitespace and no leading equals").
			AssertFormulaEq("  1 + 2 * 3 ", 7).
			AssertFormulaEq("= (1 + 2) * 3", 9).
			End()
	})

	t.Run("InvalidFormulas", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Unclosed call").
			Set("A1", "=SUM(").
			AssertCellErr("A1", ErrorCodeName).
			End()

		NewEvaluatorTestCase(t, "Ragged array").
			AssertFormulaEq("={1,2;3}", ErrorCodeName).
			End()

		NewEvaluatorTestCase(t, "Intersection").
			Set("A1", 1).
			AssertFormulaEq("=A1:A2 A1:B1", ErrorCodeName).
			End()
	})

	t.Run("ParseFailureIsCached", func(t *testing.T) {
		tc := NewEvaluatorTestCase(t, "Parse failure cached").
			Set("A1", "=1+").
			Set("A2", "=1+").
			AssertCellErr("A1", ErrorCodeName).
			AssertCellErr("A2", ErrorCodeName)
		assert.Equal(t, 1, tc.Evaluator().formulas.Count())
	})
}

func TestOperators(t *testing.T) {
	t.Run("Arithmetic", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Arithmetic").
			AssertFormulaEq("=7-2-1", 4).
			AssertFormulaEq("=2*3+4", 10).
			AssertFormulaEq("=2+3*4", 14).
			AssertFormulaEq("=10/4", 2.5).
			AssertFormulaEq("=2^3^2", 64).
			AssertFormulaEq("=-2^2", 4).
			AssertFormulaEq("=-(2^2)", -4).
			AssertFormulaEq("=50%", 0.5).
			AssertFormulaEq("=200%*3", 6).
			AssertFormulaEq("=--3", 3).
			End()
	})

	t.Run("Coercion", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Coercion").
			Set("A1", "12").
			Set("A2", true).
			Set("A3", "7").
			AssertFormulaEq("=A1*2", 24).
			AssertFormulaEq("=A2+1", 2).
			AssertFormulaEq("=B9+1", 1).
			AssertFormulaEq(`="5%"*10`, 0.5).
			AssertFormulaEq(`="abc"+1`, ErrorCodeValue).
			AssertFormulaEq(`=""+1`, ErrorCodeValue).
			AssertFormulaEq(`=+"abc"`, ErrorCodeValue).
			AssertFormulaEq("=+A3", 7).
			AssertFormulaEq("=+A3&\"\"", "7").
			AssertFormulaEq("=-+A3", -7).
			End()
	})

	t.Run("Errors", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Errors").
			AssertFormulaEq("=1/0", ErrorCodeDiv0).
			AssertFormulaEq("=0^0", ErrorCodeNum).
			AssertFormulaEq("=0^-1", ErrorCodeDiv0).
			AssertFormulaEq("=(-8)^0.5", ErrorCodeNum).
			AssertFormulaEq("=10^400", ErrorCodeNum).
			AssertFormulaEq("=#N/A+1", ErrorCodeNA).
			AssertFormulaEq("=1+#REF!", ErrorCodeRef).
			End()
	})

	t.Run("Concatenation", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Concatenation").
			Set("A1", 1.5).
			Set("A2", true).
			AssertFormulaEq(`="a"&"b"`, "ab").
			AssertFormulaEq(`=A1&"x"`, "1.5x").
			AssertFormulaEq(`=A2&B9&1`, "TRUE1").
			AssertFormulaEq(`={"p","q"}&"!"`, "p!").
			AssertFormulaEq(`=#DIV/0!&"a"`, ErrorCodeDiv0).
			End()
	})
}

func TestComparisons(t *testing.T) {
	NewEvaluatorTestCase(t, "Equality").
		AssertFormulaEq(`="abc"="abc"`, true).
		AssertFormulaEq(`="abc"="ABC"`, true).
		AssertFormulaEq(`="abc"<>"abd"`, true).
		AssertFormulaEq("=TRUE=1", false).
		AssertFormulaEq(`=1="1"`, false).
		AssertFormulaEq("=A9=0", true).
		AssertFormulaEq(`=A9=""`, true).
		AssertFormulaEq("=A9=FALSE", true).
		AssertFormulaEq("=1=1.0", true).
		AssertFormulaEq("=#N/A=1", ErrorCodeNA).
		End()

	NewEvaluatorTestCase(t, "Ordering").
		AssertFormulaEq("=2>1", true).
		AssertFormulaEq("=2<=1", false).
		AssertFormulaEq(`="a"<"b"`, true).
		AssertFormulaEq(`="B">"a"`, true).
		AssertFormulaEq(`="apple">="APPLE"`, true).
		AssertFormulaEq(`=1>"a"`, ErrorCodeValue).
		AssertFormulaEq("=TRUE>FALSE", ErrorCodeValue).
		AssertFormulaEq("=A9<1", ErrorCodeValue).
		End()
}

func TestCellReferences(t *testing.T) {
	NewEvaluatorTestCase(t, "Chain").
		Set("A1", 1).
		Set("A2", "=A1+1").
		Set("A3", "=A2+1").
		Set("A4", "=$A$3*10").
		AssertCellEq("A4", 30).
		End()

	NewEvaluatorTestCase(t, "Cross sheet").
		AddSheet("Data").
		AddSheet("My Sheet").
		Set("Data!B2", 7).
		Set("My Sheet!C3", 5).
		Set("A1", "=Data!B2*2").
		Set("A2", "='My Sheet'!C3+DATA!B2").
		Set("Data!A1", "=B2").
		AssertCellEq("A1", 14).
		AssertCellEq("A2", 12).
		AssertCellEq("Data!A1", 7).
		End()

	NewEvaluatorTestCase(t, "Unknown sheet").
		Set("A1", "=Nope!A1").
		AssertCellErr("A1", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Missing cells are empty").
		Set("A1", "=Z99").
		AssertCellEmpty("A1").
		AssertCellEmpty("B7").
		End()

	NewEvaluatorTestCase(t, "Stored values").
		Set("A1", "text").
		Set("A2", false).
		Set("A3", ErrorCodeNA).
		Set("A4", time.Date(2024, time.March, 5, 13, 30, 0, 0, time.UTC)).
		Set("B3", "=A3").
		AssertCellEq("A1", "text").
		AssertCellEq("A2", false).
		AssertCellErr("A3", ErrorCodeNA).
		AssertCellErr("B3", ErrorCodeNA).
		AssertCellEq("A4", "2024-03-05T13:30:00.000Z").
		End()
}

func TestCircularReferences(t *testing.T) {
	NewEvaluatorTestCase(t, "Self reference").
		Set("A1", "=A1").
		AssertCellErr("A1", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Two cell cycle").
		Set("A1", "=B1+1").
		Set("B1", "=A1+1").
		AssertCellErr("A1", ErrorCodeRef).
		AssertCellErr("B1", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Cycle through a range").
		Set("A1", 1).
		Set("A3", "=SUM(A1:A3)").
		AssertCellErr("A3", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Cells outside the cycle still evaluate").
		Set("A1", "=A1").
		Set("B1", 4).
		Set("C1", "=B1*2").
		AssertCellErr("A1", ErrorCodeRef).
		AssertCellEq("C1", 8).
		End()
}

func TestMemoization(t *testing.T) {
	t.Run("Diamond", func(t *testing.T) {
		calls := 0
		tc := NewEvaluatorTestCase(t, "Diamond").
			WithOptions(WithRegistry(countingRegistry(&calls))).
			Set("A1", "=TRACK(5)").
			Set("B1", "=A1").
			Set("C1", "=A1").
			Set("D1", "=B1*C1").
			AssertCellEq("D1", 25).
			AssertCellEq("D1", 25).
			AssertCellEq("A1", 5)
		assert.Equal(t, 1, calls)
		tc.End()
	})

	t.Run("Diamond computes each cell once", func(t *testing.T) {
		calls := 0
		tc := NewEvaluatorTestCase(t, "DiamondOnce").
			WithOptions(WithRegistry(countingRegistry(&calls))).
			Set("B1", "=TRACK(D1)*2").
			Set("C1", "=TRACK(D1)*3").
			Set("D1", "=TRACK(5)").
			AssertFormulaEq("=B1+C1", 25)
		assert.Equal(t, 3, calls)
		tc.AssertFormulaEq("=B1+C1", 25).
			AssertCellEq("D1", 5)
		assert.Equal(t, 3, calls)
		tc.End()
	})

	t.Run("Idempotent", func(t *testing.T) {
		tc := NewEvaluatorTestCase(t, "Idempotent").
			Set("A1", 3).
			Set("A2", "=A1/7")
		first, err := tc.Evaluator().EvaluateCell(0, CellAddress{Column: 1, Row: 2})
		require.NoError(t, err)
		second, err := tc.Evaluator().EvaluateCell(0, CellAddress{Column: 1, Row: 2})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("Concurrent callers", func(t *testing.T) {
		tc := NewEvaluatorTestCase(t, "Concurrent")
		for row := 1; row <= 50; row++ {
			tc.Set(fmt.Sprintf("A%d", row), row)
			tc.Set(fmt.Sprintf("B%d", row), fmt.Sprintf("=A%d*2+SUM(A1:A%d)", row, row))
		}
		e := tc.Evaluator()

		var wg sync.WaitGroup
		results := make([]float64, 50)
		for i := range 50 {
			wg.Add(1)
			go func(row int) {
				defer wg.Done()
				v, err := e.EvaluateCell(0, CellAddress{Column: 2, Row: row})
				assert.NoError(t, err)
				results[row-1] = v.Num()
			}(i + 1)
		}
		wg.Wait()
		for row := 1; row <= 50; row++ {
			assert.InDelta(t, float64(row*2+row*(row+1)/2), results[row-1], 1e-9)
		}
	})
}

func TestArrays(t *testing.T) {
	NewEvaluatorTestCase(t, "Array literal").
		AssertFormulaResult("A1", "={1,2;3,4}", "{1,2;3,4}").
		AssertFormulaResult("A1", `={"a",TRUE,#N/A}`, `{"a",TRUE,#N/A}`).
		AssertFormulaEq("={1,2;3,4}", 1).
		AssertFormulaEq("=ROWS({1,2;3,4})", 2).
		AssertFormulaEq("=COLUMNS({1,2,3})", 3).
		End()

	NewEvaluatorTestCase(t, "Array arithmetic").
		Set("A1", 1).
		Set("A2", 2).
		Set("A3", 3).
		AssertFormulaResult("A1", "={1,2}*2", "{2,4}").
		AssertFormulaResult("A1", "=10-{1,2;3,4}", "{9,8;7,6}").
		AssertFormulaResult("A1", "={1,2}+{10,20}", "{11,22}").
		AssertFormulaResult("A1", "={1,2}/{1,0}", "{1,#DIV/0!}").
		AssertFormulaResult("A1", "=-{1,2}", "{-1,-2}").
		AssertFormulaResult("A1", "=A1:A3*10", "{10;20;30}").
		AssertFormulaResult("A1", "={5}+{6}", "11").
		AssertFormulaEq("={1,2}+{1;2}", ErrorCodeValue).
		AssertFormulaEq(`={1,"x"}*2`, ErrorCodeValue).
		End()

	t.Run("Range summed by an eager function", func(t *testing.T) {
		calls := 0
		NewEvaluatorTestCase(t, "Range sum").
			WithOptions(WithRegistry(countingRegistry(&calls))).
			Set("A1", 1).
			Set("A2", 2).
			Set("A3", 3).
			Set("B1", "=TOTAL(A1:A3)").
			AssertCellEq("B1", 6).
			AssertFormulaResult("C1", "=A1:A3", "{1;2;3}").
			End()
	})

	NewEvaluatorTestCase(t, "Ranges keep error cells").
		Set("A1", 1).
		Set("A2", "=1/0").
		AssertFormulaResult("B1", "=A1:A2", "{1;#DIV/0!}").
		AssertFormulaEq("=SUM(A1:A2)", ErrorCodeDiv0).
		AssertFormulaEq("=COUNT(A1:A2)", 1).
		AssertFormulaEq("=COUNTA(A1:A2)", 2).
		End()

	NewEvaluatorTestCase(t, "Reversed and whole line ranges").
		Set("A1", 1).
		Set("A2", 2).
		Set("A3", 3).
		Set("B2", 10).
		AssertFormulaEq("=SUM(A3:A1)", 6).
		AssertFormulaEq("=SUM(A:A)", 6).
		AssertFormulaEq("=SUM(2:2)", 12).
		AssertFormulaEq("=ROWS(A:A)", 3).
		End()

	NewEvaluatorTestCase(t, "3-D range").
		AddSheet("Sheet2").
		AddSheet("Sheet3").
		Set("A1", 1).
		Set("Sheet2!A1", 2).
		Set("Sheet3!A1", 3).
		Set("Sheet3!A2", 4).
		AssertFormulaEq("=SUM(Sheet1:Sheet3!A1)", 6).
		AssertFormulaEq("=SUM(Sheet1:Sheet3!A1:A2)", 10).
		AssertFormulaEq("=SUM(Sheet3:Sheet2!A1)", 5).
		AssertFormulaEq("=SUM(Sheet1:Nope!A1)", ErrorCodeRef).
		End()
}

func TestArrayFormulas(t *testing.T) {
	t.Run("Spill", func(t *testing.T) {
		calls := 0
		tc := NewEvaluatorTestCase(t, "Spill").
			WithOptions(WithRegistry(countingRegistry(&calls))).
			Set("A1", 1).
			Set("A2", 2).
			Set("A3", 3).
			SetArray("C1:C3", "=TRACK(A1:A3*10)").
			AssertCellEq("C1", 10).
			AssertCellEq("C2", 20).
			AssertCellEq("C3", 30)
		assert.Equal(t, 1, calls)
		tc.End()
	})

	NewEvaluatorTestCase(t, "Block larger than result").
		SetArray("B1:C2", "={1;2}").
		AssertCellEq("B1", 1).
		AssertCellEq("B2", 2).
		AssertCellErr("C1", ErrorCodeValue).
		AssertCellErr("C2", ErrorCodeValue).
		End()

	NewEvaluatorTestCase(t, "Scalar result fills the anchor").
		SetArray("D1:D2", "=6*7").
		AssertCellEq("D1", 42).
		AssertCellErr("D2", ErrorCodeValue).
		End()

	NewEvaluatorTestCase(t, "Error fills the block").
		SetArray("A1:B1", "=1/0").
		AssertCellErr("A1", ErrorCodeDiv0).
		AssertCellErr("B1", ErrorCodeDiv0).
		End()

	NewEvaluatorTestCase(t, "Block reading itself").
		SetArray("A1:A2", "=A2+1").
		AssertCellErr("A2", ErrorCodeRef).
		AssertCellErr("A1", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Read from another cell").
		SetArray("A1:B2", "={1,2;3,4}").
		Set("C1", "=SUM(A1:B2)").
		AssertCellEq("C1", 10).
		End()
}

func TestDefinedNames(t *testing.T) {
	NewEvaluatorTestCase(t, "Global reference name").
		Set("A1", 0.2).
		Set("B1", "=Rate*100").
		AddName("Rate", "Sheet1!$A$1").
		AssertCellEq("B1", 20).
		AssertFormulaEq("=rate", 0.2).
		End()

	NewEvaluatorTestCase(t, "Range name").
		Set("A1", 1).
		Set("A2", 2).
		Set("A3", 3).
		AddName("Data", "=Sheet1!$A$1:$A$3").
		AssertFormulaEq("=SUM(Data)", 6).
		AssertFormulaResult("B1", "=Data", "{1;2;3}").
		End()

	NewEvaluatorTestCase(t, "Formula name").
		AddName("Two", "=1+1").
		AssertFormulaEq("=Two*3", 6).
		End()

	NewEvaluatorTestCase(t, "Unqualified reference resolves on the calling sheet").
		AddSheet("Sheet2").
		Set("A1", 1).
		Set("Sheet2!A1", 2).
		Set("Sheet2!B1", "=Here").
		AddName("Here", "A1").
		AssertFormulaEq("=Here", 1).
		AssertCellEq("Sheet2!B1", 2).
		End()

	NewEvaluatorTestCase(t, "Local wins over global").
		AddSheet("Sheet2").
		Set("B1", "=Scale").
		Set("Sheet2!B1", "=Scale").
		AddName("Scale", "=10").
		AddLocalName(1, "Scale", "=20").
		AssertCellEq("B1", 10).
		AssertCellEq("Sheet2!B1", 20).
		End()

	NewEvaluatorTestCase(t, "External links are skipped").
		Set("A2", 9).
		AddName("Linked", "[1]Sheet1!$A$1").
		AddName("Linked", "Sheet1!$A$2").
		AssertFormulaEq("=Linked", 9).
		End()

	NewEvaluatorTestCase(t, "Unknown name").
		Set("A1", "=Missing+1").
		AssertCellErr("A1", ErrorCodeName).
		End()

	NewEvaluatorTestCase(t, "Recursive name").
		AddName("Loop", "=Loop+1").
		Set("A1", "=Loop").
		AssertCellErr("A1", ErrorCodeRef).
		AssertFormulaEq("=Loop", ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Name raising an error").
		AddName("Broken", "=1/0").
		AssertFormulaEq("=IFERROR(Broken, 5)", 5).
		AssertFormulaEq("=Broken", ErrorCodeDiv0).
		End()

	NewEvaluatorTestCase(t, "Same name reused in one formula").
		AddName("One", "=1").
		AssertFormulaEq("=One+One", 2).
		End()
}

func salesTable() Table {
	return Table{
		Name:           "Sales",
		Sheet:          0,
		Ref:            CellRange{Start: CellAddress{Column: 1, Row: 1}, End: CellAddress{Column: 3, Row: 5}},
		HeaderRowCount: 1,
		TotalsRowCount: 1,
		Columns:        []TableColumn{{Name: "Item"}, {Name: "Qty"}, {Name: "Price"}},
	}
}

func salesTestCase(t *testing.T, name string) *EvaluatorTestCase {
	return NewEvaluatorTestCase(t, name).
		AddTable(salesTable()).
		Set("A1", "Item").Set("B1", "Qty").Set("C1", "Price").
		Set("A2", "pen").Set("B2", 2).Set("C2", 1.5).
		Set("A3", "ink").Set("B3", 3).Set("C3", 4).
		Set("A4", "pad").Set("B4", 5).Set("C4", 2).
		Set("A5", "Total").Set("B5", "=SUM(Sales[Qty])")
}

func TestStructuredReferences(t *testing.T) {
	salesTestCase(t, "Column data").
		AssertCellEq("B5", 10).
		AssertFormulaEq("=SUM(Sales[Price])", 7.5).
		AssertFormulaResult("E1", "=Sales[Item]", `{"pen";"ink";"pad"}`).
		AssertFormulaEq("=ROWS(Sales[#All])", 5).
		AssertFormulaEq("=COLUMNS(Sales[#All])", 3).
		AssertFormulaEq("=Sales", ErrorCodeName).
		AssertFormulaEq("=ROWS(Sales[])", 3).
		End()

	salesTestCase(t, "Items").
		AssertFormulaResult("E1", "=Sales[#Headers]", `{"Item","Qty","Price"}`).
		AssertFormulaResult("E1", "=Sales[[#Totals],[Qty]]", "{10}").
		AssertFormulaResult("E1", "=Sales[[#Data],[Qty]:[Price]]", "{2,1.5;3,4;5,2}").
		AssertFormulaResult("E1", "=Sales[[#Headers],[Price]:[Item]]", `{"Item","Qty","Price"}`).
		End()

	salesTestCase(t, "This row").
		Set("E3", "=Sales[@Qty]*Sales[@Price]").
		Set("F3", "=Sales[#This Row]").
		Set("E1", "=Sales[#This Row]").
		Set("E5", "=Sales[@Qty]").
		AssertCellEq("E3", 12).
		AssertCellEq("F3", "ink").
		AssertCellErr("E1", ErrorCodeRef).
		AssertCellErr("E5", ErrorCodeRef).
		End()

	salesTestCase(t, "Failures").
		AssertFormulaEq("=SUM(Sales[Weight])", ErrorCodeRef).
		AssertFormulaEq("=SUM(Nope[Qty])", ErrorCodeName).
		AssertFormulaEq("=sales[qty]", 2).
		End()

	NewEvaluatorTestCase(t, "No totals row").
		AddTable(Table{
			Name:           "T",
			Ref:            CellRange{Start: CellAddress{Column: 1, Row: 1}, End: CellAddress{Column: 1, Row: 3}},
			HeaderRowCount: 1,
			Columns:        []TableColumn{{Name: "A"}},
		}).
		Set("A2", 1).
		Set("A3", 2).
		AssertFormulaEq("=T[#Totals]", ErrorCodeRef).
		AssertFormulaEq("=SUM(T[A])", 3).
		End()
}

func TestFunctionDispatch(t *testing.T) {
	t.Run("UnknownFunction", func(t *testing.T) {
		tc := NewEvaluatorTestCase(t, "Unknown function").
			Set("A1", "=SUMM(1,2)").
			ExpectCellAppError("A1", NotFound)

		var unknown *UnknownFunctionError
		require.True(t, errors.As(tc.Err(), &unknown))
		assert.Equal(t, "SUMM", unknown.Name)
		assert.Contains(t, unknown.Suggestions, "SUM")
		assert.Contains(t, tc.Err().Error(), "did you mean")

		// never cached
		tc.ExpectCellAppError("A1", NotFound)
	})

	t.Run("UnknownFunctionInsideIferror", func(t *testing.T) {
		NewEvaluatorTestCase(t, "Not a formula error").
			Set("A1", "=IFERROR(NOPE(), 1)").
			ExpectCellAppError("A1", NotFound).
			End()
	})

	NewEvaluatorTestCase(t, "Compatibility prefix").
		AssertFormulaEq(`=_xlfn.CONCAT("a",{"b","c"})`, "abc").
		AssertFormulaEq(`=CONCAT("x","y")`, "xy").
		AssertFormulaEq(`=_xlfn.IFS(FALSE,1,TRUE,2)`, 2).
		AssertFormulaEq(`=_xlfn._xlws.IFS(1>2,1)`, ErrorCodeNA).
		AssertFormulaEq(`=_xlfn.SUM(1,2)`, 3).
		End()

	NewEvaluatorTestCase(t, "Lazy functions").
		AssertFormulaEq("=IF(TRUE,1,1/0)", 1).
		AssertFormulaEq("=IF(FALSE,1/0,2)", 2).
		AssertFormulaEq("=IF(FALSE,1)", false).
		AssertFormulaEq("=IF(1/0,1,2)", ErrorCodeDiv0).
		AssertFormulaEq("=IFERROR(1/0,\"fallback\")", "fallback").
		AssertFormulaEq("=IFERROR(3,\"fallback\")", 3).
		End()

	NewEvaluatorTestCase(t, "Eager argument errors propagate").
		AssertFormulaEq("=SUM(1,1/0)", ErrorCodeDiv0).
		AssertFormulaEq("=LEN(#N/A)", ErrorCodeNA).
		End()

	NewEvaluatorTestCase(t, "INDIRECT").
		AddSheet("Other").
		Set("A1", 4).
		Set("Other!B2", 8).
		Set("C1", "B2").
		AssertFormulaEq(`=INDIRECT("A1")*2`, 8).
		AssertFormulaEq(`=INDIRECT("Other!"&C1)`, 8).
		AssertFormulaEq(`=SUM(INDIRECT("A1:A3"))`, 4).
		AssertFormulaEq(`=INDIRECT("not a ref")`, ErrorCodeRef).
		End()

	NewEvaluatorTestCase(t, "Omitted arguments are empty").
		AssertFormulaEq("=SUM(1,,2)", 3).
		AssertFormulaEq(`=CONCATENATE("a",,"b")`, "ab").
		End()
}

func TestPublicInterface(t *testing.T) {
	tc := NewEvaluatorTestCase(t, "Public interface").
		Set("A1", 2).
		Set("B1", "=A1*3")
	e := tc.Evaluator()

	t.Run("InvalidSheet", func(t *testing.T) {
		_, err := e.EvaluateCell(3, CellAddress{Column: 1, Row: 1})
		var appErr *AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, InvalidArgument, appErr.Code)

		_, err = e.EvaluateFormula(-1, "=1")
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, InvalidArgument, appErr.Code)
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		_, err := e.EvaluateCell(0, CellAddress{Column: 0, Row: 1})
		var appErr *AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, InvalidArgument, appErr.Code)
	})

	t.Run("FormulaAnchoredAtOrigin", func(t *testing.T) {
		r, err := e.EvaluateFormulaResult(0, CellAddress{Column: 2, Row: 1}, "=B1+1")
		require.NoError(t, err)
		assert.Equal(t, "7", r.String())

		r, err = e.EvaluateFormulaResult(0, CellAddress{Column: 1, Row: 1}, "=1/0")
		require.NoError(t, err)
		assert.Equal(t, "#DIV/0!", r.String())
	})

	t.Run("EmptyFormulaResult", func(t *testing.T) {
		v, err := e.EvaluateFormula(0, "=Z1")
		require.NoError(t, err)
		assert.True(t, v.IsEmpty())
	})
}

func TestNumericRoundTrip(t *testing.T) {
	values := []float64{0, -0.5, 0.1, 1e-300, 123456789.123456, -987654321e10, math.MaxFloat64, math.SmallestNonzeroFloat64}
	for _, value := range values {
		t.Run(fmt.Sprint(value), func(t *testing.T) {
			tc := NewEvaluatorTestCase(t, "Round trip").
				Set("A1", value).
				Set("A2", "=A1")
			v, err := tc.Evaluator().EvaluateCell(0, CellAddress{Column: 1, Row: 2})
			require.NoError(t, err)
			assert.Equal(t, KindNumber, v.Kind())
			assert.Equal(t, value, v.Num())
		})
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedRandom struct{ value float64 }

func (r fixedRandom) Float64() float64 { return r.value }

func TestVolatileFunctions(t *testing.T) {
	clock := fixedClock{now: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewBuiltInFunctions(clock, fixedRandom{value: 0.25}).Registry()

	NewEvaluatorTestCase(t, "1900 date system").
		WithOptions(WithRegistry(registry)).
		AssertFormulaEq("=NOW()", 45292.5).
		AssertFormulaEq("=TODAY()", 45292).
		AssertFormulaEq("=RAND()", 0.25).
		End()

	NewEvaluatorTestCase(t, "1904 date system").
		WithOptions(WithRegistry(registry)).
		WithDateSystem(DateSystem1904).
		AssertFormulaEq("=TODAY()", 43830).
		End()
}
