package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// FormulaParser turns formula text into a syntax tree. implementations may
// fail on malformed syntax.
type FormulaParser interface {
	Parse(text string) (Node, error)
}

// ReferenceParser parses text that must be a plain cell or range reference.
type ReferenceParser interface {
	ParseReference(text string) (Node, error)
}

// Parser is the default FormulaParser. it is stateless and safe for
// concurrent use.
type Parser struct{}

// NewParser creates the default formula parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses formula text (with or without the leading '=') into an AST
func (p *Parser) Parse(text string) (Node, error) {
	tokens, err := NewLexer(text).Tokenize()
	if err != nil {
		return nil, err
	}
	tp := &tokenParser{tokens: tokens}
	node, err := tp.parseComparison()
	if err != nil {
		return nil, err
	}
	if tok := tp.peek(); tok.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token after expression: %s", tok.Value)
	}
	return node, nil
}

// ParseReference parses a cell or range reference from a string. returns
// either a ReferenceNode or RangeNode, or an error
func (p *Parser) ParseReference(text string) (Node, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "=")
	if strings.Contains(text, "[") {
		return nil, fmt.Errorf("input is not a valid cell reference or range: %s", text)
	}
	return referenceNode(text)
}

// tokenParser holds the cursor for one parse
type tokenParser struct {
	tokens []Token
	pos    int
}

func (p *tokenParser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *tokenParser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// parseComparison handles comparison operators (lowest precedence)
func (p *tokenParser) parseComparison() (Node, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenBinaryOp {
			return left, nil
		}

		var op CompareOp
		switch tok.Value {
		case "=":
			op = CmpEqual
		case "<>":
			op = CmpNotEqual
		case "<":
			op = CmpLess
		case "<=":
			op = CmpLessEqual
		case ">":
			op = CmpGreater
		case ">=":
			op = CmpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &CompareNode{Op: op, Left: left, Right: right}
	}
}

// parseConcatenation handles string concatenation operator
func (p *tokenParser) parseConcatenation() (Node, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for p.peek().Type == TokenBinaryOp && p.peek().Value == "&" {
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: BinOpConcat, Left: left, Right: right}
	}
	return left, nil
}

// parseAddition handles addition and subtraction
func (p *tokenParser) parseAddition() (Node, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenBinaryOp {
			return left, nil
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right}
	}
}

// parseMultiplication handles multiplication and division
func (p *tokenParser) parseMultiplication() (Node, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenBinaryOp {
			return left, nil
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right}
	}
}

// parsePower handles exponentiation. left-associative, so 2^3^2 is 64
func (p *tokenParser) parsePower() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.peek().Type == TokenBinaryOp && p.peek().Value == "^" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: BinOpPower, Left: left, Right: right}
	}
	return left, nil
}

// parseUnary handles prefix operators. they bind tighter than ^, so -2^2
// is 4
func (p *tokenParser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.Type == TokenPrefixOp || (tok.Type == TokenBinaryOp && (tok.Value == "+" || tok.Value == "-")) {
		var op UnaryOp
		switch tok.Value {
		case "+":
			op = UnaryOpPlus
		case "-":
			op = UnaryOpMinus
		default:
			return nil, fmt.Errorf("unexpected prefix operator: %s", tok.Value)
		}
		p.pos++
		operand, err := p.parseUnary() // recurse for chained unary operators
		if err != nil {
			return nil, err
		}
		return &UnaryOpNode{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles postfix operators (percent)
func (p *tokenParser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.peek().Type == TokenPostfixOp && p.peek().Value == "%" {
		p.pos++
		node = &UnaryOpNode{Op: UnaryOpPercent, Operand: node}
	}
	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, arrays, parentheses)
func (p *tokenParser) parsePrimary() (Node, error) {
	tok := p.next()

	switch tok.Type {
	case TokenNumber:
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", tok.Value)
		}
		return &LiteralNode{Value: Number(val)}, nil

	case TokenString:
		return &LiteralNode{Value: String(tok.Value)}, nil

	case TokenBoolean:
		return &LiteralNode{Value: Boolean(tok.Value == "TRUE")}, nil

	case TokenError:
		code, ok := ParseErrorCode(tok.Value)
		if !ok {
			return nil, fmt.Errorf("unknown error literal: %s", tok.Value)
		}
		return &LiteralNode{Value: ErrorValue(code)}, nil

	case TokenReference:
		return operandNode(tok.Value)

	case TokenFunction:
		return p.parseFunctionCall(tok.Value)

	case TokenLeftBrace:
		return p.parseArray()

	case TokenLeftParen:
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.next().Type != TokenRightParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		return node, nil

	case TokenEOF:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected token: %s", tok.Value)
	}
}

// parseFunctionCall parses a function call. omitted arguments become empty
// literals
func (p *tokenParser) parseFunctionCall(name string) (Node, error) {
	if p.next().Type != TokenLeftParen {
		return nil, fmt.Errorf("expected '(' after function name")
	}

	args := []Node{}

	// check for empty argument list
	if p.peek().Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{Name: name, Args: args}, nil
	}

	for {
		var arg Node
		if t := p.peek().Type; t == TokenComma || t == TokenRightParen {
			arg = &LiteralNode{Value: Empty()}
		} else {
			var err error
			arg, err = p.parseComparison()
			if err != nil {
				return nil, err
			}
		}
		args = append(args, arg)

		switch p.next().Type {
		case TokenRightParen:
			return &FunctionCallNode{Name: name, Args: args}, nil
		case TokenComma:
		case TokenEOF:
			return nil, fmt.Errorf("unexpected end in function arguments")
		default:
			return nil, fmt.Errorf("expected ',' or ')' in function arguments")
		}
	}
}

// parseArray parses an array literal after its opening brace
func (p *tokenParser) parseArray() (Node, error) {
	rows := [][]Node{{}}
	for {
		elem, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], elem)

		switch p.next().Type {
		case TokenComma:
		case TokenSemicolon:
			rows = append(rows, []Node{})
		case TokenRightBrace:
			for _, row := range rows[1:] {
				if len(row) != len(rows[0]) {
					return nil, fmt.Errorf("array rows must have the same number of columns")
				}
			}
			return &ArrayNode{Rows: rows}, nil
		default:
			return nil, fmt.Errorf("expected ',', ';' or '}' in array")
		}
	}
}

// operandNode classifies reference-like operand text: structured reference,
// cell, range or defined name.
func operandNode(text string) (Node, error) {
	if upper := strings.ToUpper(text); upper == "TRUE" || upper == "FALSE" {
		return &LiteralNode{Value: Boolean(upper == "TRUE")}, nil
	}
	if strings.Contains(text, "[") {
		return parseStructuredRef(text)
	}
	if node, err := referenceNode(text); err == nil {
		return node, nil
	}
	if isValidName(text) {
		return &NameNode{Name: text}, nil
	}
	return nil, fmt.Errorf("invalid reference or name: %s", text)
}

func referenceNode(text string) (Node, error) {
	r, err := ParseRange(text)
	if err != nil {
		return nil, err
	}
	_, ref, _ := splitSheetQualifier(text)
	if !strings.Contains(ref, ":") && !strings.Contains(r.SheetName, ":") {
		return &ReferenceNode{SheetName: r.SheetName, Address: r.Start}, nil
	}
	return &RangeNode{Range: r}, nil
}

// isValidName reports whether text can be a defined name: a letter,
// underscore or backslash followed by letters, digits, '_', '.' or '\'.
func isValidName(text string) bool {
	if text == "" {
		return false
	}
	for i, r := range text {
		switch {
		case r == '_' || r == '\\':
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r > 127:
		case i > 0 && (r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// parseStructuredRef parses Table[...] syntax: Table[Col], Table[#Data],
// Table[@Col], Table[[#Headers],[A]:[B]] and Table[] for the data rows.
func parseStructuredRef(text string) (Node, error) {
	open := strings.Index(text, "[")
	table := strings.TrimSpace(text[:open])
	body := strings.TrimSpace(text[open:])
	if table == "" || !isValidName(table) {
		return nil, fmt.Errorf("invalid table name in %s", text)
	}
	if !strings.HasSuffix(body, "]") {
		return nil, fmt.Errorf("unterminated structured reference: %s", text)
	}
	inner := strings.TrimSpace(body[1 : len(body)-1])
	node := &StructuredRefNode{Table: table}

	// shorthand forms: [Col], [#Item], [@Col], []
	if !strings.HasPrefix(inner, "[") {
		switch {
		case inner == "":
		case strings.HasPrefix(inner, "#"):
			item, ok := normalizeItem(inner)
			if !ok {
				return nil, fmt.Errorf("unknown structured reference item: %s", inner)
			}
			node.Item = item
		case strings.HasPrefix(inner, "@"):
			node.Item = ItemThisRow
			if col := strings.Trim(strings.TrimSpace(inner[1:]), "[]"); col != "" {
				node.StartColumn, node.EndColumn = col, col
			}
		default:
			node.StartColumn, node.EndColumn = inner, inner
		}
		return node, nil
	}

	parts, err := splitStructuredParts(inner)
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, text)
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "@") {
			node.Item = ItemThisRow
			part = strings.TrimSpace(part[1:])
			if part == "" {
				continue
			}
		}
		if strings.HasPrefix(part, "[#") {
			if node.Item != "" {
				return nil, fmt.Errorf("only one item specifier is supported: %s", text)
			}
			item, ok := normalizeItem(strings.Trim(part, "[]"))
			if !ok {
				return nil, fmt.Errorf("unknown structured reference item: %s", part)
			}
			node.Item = item
			continue
		}
		if node.StartColumn != "" {
			return nil, fmt.Errorf("only one column specifier is supported: %s", text)
		}
		start, end, isSpan := strings.Cut(part, ":")
		node.StartColumn = strings.TrimSpace(strings.Trim(strings.TrimSpace(start), "[]"))
		node.EndColumn = node.StartColumn
		if isSpan {
			node.EndColumn = strings.TrimSpace(strings.Trim(strings.TrimSpace(end), "[]"))
		}
	}
	return node, nil
}

// splitStructuredParts splits "[#Data],[A]:[B]" at the top-level commas.
func splitStructuredParts(inner string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets")
			}
		case ',':
			if depth == 0 {
				parts = append(parts, inner[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	return append(parts, inner[start:]), nil
}

func normalizeItem(text string) (string, bool) {
	item := strings.ToUpper(strings.Join(strings.Fields(text), " "))
	switch item {
	case ItemAll, ItemData, ItemHeaders, ItemTotals, ItemThisRow:
		return item, true
	}
	return "", false
}
