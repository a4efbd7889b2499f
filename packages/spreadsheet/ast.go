package spreadsheet

import (
	"strings"
)

// Node is a formula syntax tree node. the set of node types is closed; the
// evaluator handles each one in a single type switch.
type Node interface {
	ToString() string
	isNode()
}

// BinaryOp represents arithmetic and text operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
)

func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	case BinOpPower:
		return "^"
	case BinOpConcat:
		return "&"
	}
	return "?"
}

// CompareOp represents comparison operators in AST nodes
type CompareOp int

const (
	CmpEqual CompareOp = iota
	CmpNotEqual
	CmpLess
	CmpLessEqual
	CmpGreater
	CmpGreaterEqual
)

func (op CompareOp) String() string {
	switch op {
	case CmpEqual:
		return "="
	case CmpNotEqual:
		return "<>"
	case CmpLess:
		return "<"
	case CmpLessEqual:
		return "<="
	case CmpGreater:
		return ">"
	case CmpGreaterEqual:
		return ">="
	}
	return "?"
}

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// LiteralNode is a constant: number, text, boolean, error or the empty value
// of an omitted function argument.
type LiteralNode struct {
	Value Scalar
}

func (n *LiteralNode) isNode() {}

func (n *LiteralNode) ToString() string {
	if n.Value.Kind() == KindString {
		// escape quotes in string
		return `"` + strings.ReplaceAll(n.Value.Str(), `"`, `""`) + `"`
	}
	return n.Value.String()
}

// NameNode is a defined name.
type NameNode struct {
	Name string
}

func (n *NameNode) isNode()          {}
func (n *NameNode) ToString() string { return n.Name }

// Structured reference item keywords.
const (
	ItemAll     = "#ALL"
	ItemData    = "#DATA"
	ItemHeaders = "#HEADERS"
	ItemTotals  = "#TOTALS"
	ItemThisRow = "#THIS ROW"
)

// StructuredRefNode is a table reference such as Table1[[#Data],[A]:[B]].
// Item is one of the Item constants or empty for the default (#DATA).
// EndColumn equals StartColumn for a single column; both are empty for all
// columns.
type StructuredRefNode struct {
	Table       string
	Item        string
	StartColumn string
	EndColumn   string
}

func (n *StructuredRefNode) isNode() {}

func (n *StructuredRefNode) ToString() string {
	var parts []string
	if n.Item != "" {
		parts = append(parts, "["+n.Item+"]")
	}
	if n.StartColumn != "" {
		col := "[" + n.StartColumn + "]"
		if n.EndColumn != "" && !strings.EqualFold(n.EndColumn, n.StartColumn) {
			col += ":[" + n.EndColumn + "]"
		}
		parts = append(parts, col)
	}
	if len(parts) == 1 {
		return n.Table + parts[0]
	}
	return n.Table + "[" + strings.Join(parts, ",") + "]"
}

// ReferenceNode is a single cell, optionally sheet qualified.
type ReferenceNode struct {
	SheetName string
	Address   CellAddress
}

func (n *ReferenceNode) isNode() {}

func (n *ReferenceNode) ToString() string {
	if n.SheetName == "" {
		return n.Address.String()
	}
	return quoteSheetName(n.SheetName) + "!" + n.Address.String()
}

// RangeNode is a rectangular range, possibly spanning several sheets.
type RangeNode struct {
	Range CellRange
}

func (n *RangeNode) isNode()          {}
func (n *RangeNode) ToString() string { return n.Range.String() }

// ArrayNode is an array literal such as {1,2;3,4}.
type ArrayNode struct {
	Rows [][]Node
}

func (n *ArrayNode) isNode() {}

func (n *ArrayNode) ToString() string {
	rows := make([]string, len(n.Rows))
	for i, row := range n.Rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cell.ToString()
		}
		rows[i] = strings.Join(cells, ",")
	}
	return "{" + strings.Join(rows, ";") + "}"
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op      UnaryOp
	Operand Node
}

func (n *UnaryOpNode) isNode() {}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpPlus:
		return "+" + n.Operand.ToString()
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	}
	return "(" + n.Operand.ToString() + "%)"
}

// BinaryOpNode represents an arithmetic or concatenation operation
type BinaryOpNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (n *BinaryOpNode) isNode() {}

func (n *BinaryOpNode) ToString() string {
	return "(" + n.Left.ToString() + n.Op.String() + n.Right.ToString() + ")"
}

// CompareNode represents a comparison
type CompareNode struct {
	Op    CompareOp
	Left  Node
	Right Node
}

func (n *CompareNode) isNode() {}

func (n *CompareNode) ToString() string {
	return "(" + n.Left.ToString() + n.Op.String() + n.Right.ToString() + ")"
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name string
	Args []Node
}

func (n *FunctionCallNode) isNode() {}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return n.Name + "(" + strings.Join(args, ",") + ")"
}
