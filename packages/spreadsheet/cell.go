package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CellType represents numeric constants for stored cell value
// types (external API)
type CellType uint8

const (
	CellValueTypeEmpty   CellType = 0
	CellValueTypeNumber  CellType = 1
	CellValueTypeString  CellType = 2
	CellValueTypeDate    CellType = 3
	CellValueTypeBoolean CellType = 4
	CellValueTypeError   CellType = 5
)

// CellValue is a literal value stored in a cell, with type information.
// only the field matching Type is meaningful.
type CellValue struct {
	Type    CellType
	Number  float64
	Text    string
	Boolean bool
	Error   ErrorCode
	Date    time.Time
}

func NumberValue(n float64) CellValue { return CellValue{Type: CellValueTypeNumber, Number: n} }
func TextValue(s string) CellValue    { return CellValue{Type: CellValueTypeString, Text: s} }
func BooleanValue(b bool) CellValue   { return CellValue{Type: CellValueTypeBoolean, Boolean: b} }
func ErrorCellValue(c ErrorCode) CellValue {
	return CellValue{Type: CellValueTypeError, Error: c}
}
func DateValue(t time.Time) CellValue { return CellValue{Type: CellValueTypeDate, Date: t} }

// isoDateLayout is the layout dates take when they are read by a formula.
const isoDateLayout = "2006-01-02T15:04:05.000Z"

// Scalar converts the stored value into the value a formula sees. dates
// become ISO-8601 text in UTC.
func (v CellValue) Scalar() Scalar {
	switch v.Type {
	case CellValueTypeNumber:
		return Number(v.Number)
	case CellValueTypeString:
		return String(v.Text)
	case CellValueTypeBoolean:
		return Boolean(v.Boolean)
	case CellValueTypeError:
		return ErrorValue(v.Error)
	case CellValueTypeDate:
		return String(v.Date.UTC().Format(isoDateLayout))
	}
	return Empty()
}

// FormulaType distinguishes ordinary formulas from array (spilling) ones.
type FormulaType uint8

const (
	FormulaTypeNormal FormulaType = 0
	FormulaTypeArray  FormulaType = 1
)

// Formula is the formula definition held by a cell. Ref is the spill range
// of an array formula.
type Formula struct {
	Expression string
	Ref        *CellRange
	Type       FormulaType
}

// Cell represents a spreadsheet cell: either a literal value or a formula.
type Cell struct {
	Column  int // 1-based column index
	Value   CellValue
	Formula *Formula
}

// CellAddress is a 1-based cell position. the absolute flags only matter
// when the address is written back out as text.
type CellAddress struct {
	Column         int
	Row            int
	ColumnAbsolute bool
	RowAbsolute    bool
}

func (a CellAddress) String() string {
	var sb strings.Builder
	if a.ColumnAbsolute {
		sb.WriteByte('$')
	}
	sb.WriteString(ColumnName(a.Column))
	if a.RowAbsolute {
		sb.WriteByte('$')
	}
	sb.WriteString(strconv.Itoa(a.Row))
	return sb.String()
}

// ColumnName converts a 1-based column index to letters (1=A, 27=AA).
func ColumnName(col int) string {
	if col < 1 {
		return ""
	}
	var buf []byte
	for col > 0 {
		col--
		buf = append([]byte{byte('A' + col%26)}, buf...)
		col /= 26
	}
	return string(buf)
}

// ColumnIndex converts column letters to a 1-based index (A=1, AA=27).
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %s", letters)
		}
		col = col*26 + int(ch-'A') + 1
		if col > maxColumns {
			return 0, fmt.Errorf("column out of range: %s", letters)
		}
	}
	return col, nil
}

// ParseCellAddress parses A1 notation with optional $ markers.
func ParseCellAddress(text string) (CellAddress, error) {
	var addr CellAddress
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "$") {
		addr.ColumnAbsolute = true
		s = s[1:]
	}

	// find where letters end and numbers begin
	letterEnd := 0
	for letterEnd < len(s) && isASCIILetter(s[letterEnd]) {
		letterEnd++
	}
	if letterEnd == 0 || letterEnd == len(s) {
		return CellAddress{}, fmt.Errorf("invalid cell reference: %s", text)
	}
	col, err := ColumnIndex(s[:letterEnd])
	if err != nil {
		return CellAddress{}, err
	}

	rowStr := s[letterEnd:]
	if strings.HasPrefix(rowStr, "$") {
		addr.RowAbsolute = true
		rowStr = rowStr[1:]
	}
	row, err := strconv.Atoi(rowStr)
	if err != nil || row < 1 || row > maxRows {
		return CellAddress{}, fmt.Errorf("invalid row number in %s", text)
	}
	addr.Column = col
	addr.Row = row
	return addr, nil
}

func isASCIILetter(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z'
}

func isASCIIDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// grid limits, matching Excel
const (
	maxRows    = 1048576
	maxColumns = 16384
)
