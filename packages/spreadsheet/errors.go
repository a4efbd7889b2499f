package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA    ErrorCode = 7 // #N/A - value not available
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return ErrorMapper[ErrorCodeOther]
}

// ParseErrorCode maps error text such as "#DIV/0!" back to its code. the
// match is case-insensitive.
func ParseErrorCode(text string) (ErrorCode, bool) {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for code, s := range ErrorMapper {
		if s == upper {
			return code, true
		}
	}
	return 0, false
}

// SpreadsheetError is a formula-level error. it is raised while evaluating
// and converted into an error Scalar at the nearest cell, name or formula
// boundary.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, such as
	// a sheet index outside of the workbook.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., a function in the
	// registry) was not found.
	NotFound AppErrorCode = 5

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors). these are never turned into cell values.
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// UnknownFunctionError is returned when a formula calls a function that is
// missing from the registry.
type UnknownFunctionError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownFunctionError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("unknown function %s (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
	}
	return fmt.Sprintf("unknown function %s", e.Name)
}

// Unwrap lets callers match on the application error code.
func (e *UnknownFunctionError) Unwrap() error {
	return NewApplicationError(NotFound, e.Error())
}

// asSpreadsheetError reports whether err carries a formula error code.
func asSpreadsheetError(err error) (*SpreadsheetError, bool) {
	var se *SpreadsheetError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// raise is shorthand for returning a formula error with a formatted message.
func raise(code ErrorCode, format string, args ...any) error {
	return NewSpreadsheetError(code, fmt.Sprintf(format, args...))
}
