package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/xuri/efp"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenError
	TokenReference // cell, range, name or structured reference text
	TokenFunction
	TokenPrefixOp
	TokenPostfixOp
	TokenBinaryOp
	TokenComma
	TokenSemicolon
	TokenLeftParen
	TokenRightParen
	TokenLeftBrace
	TokenRightBrace
)

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
}

// efp reports arrays as pseudo functions with these names.
const (
	efpArray    = "ARRAY"
	efpArrayRow = "ARRAYROW"
)

// Lexer tokenizes spreadsheet formula expressions. the heavy lifting is done
// by the efp tokenizer; the lexer flattens its function/array/subexpression
// framing into bracket tokens and re-joins structured references that efp
// splits at commas.
type Lexer struct {
	input string
}

// NewLexer creates a lexer for formula text, with or without a leading '='.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// frame kinds on the open-bracket stack
const (
	frameFunction = iota
	frameSubexpression
	frameArray
	frameArrayRow
)

// Tokenize returns the token stream terminated by TokenEOF.
func (l *Lexer) Tokenize() (tokens []Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens, err = nil, fmt.Errorf("tokenizer failed on %q: %v", l.input, r)
		}
	}()

	text := strings.TrimPrefix(strings.TrimSpace(l.input), "=")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty formula")
	}
	ps := efp.ExcelParser()
	raw := ps.Parse(text)

	var frames []int
	rowsInArray := 0
	for i := 0; i < len(raw); i++ {
		tok := raw[i]
		switch tok.TType {
		case efp.TokenTypeOperand:
			if tok.TSubType == efp.TokenSubTypeRange || tok.TSubType == "" {
				value, next := stitchBrackets(raw, i)
				i = next
				tokens = append(tokens, Token{Type: TokenReference, Value: value})
				continue
			}
			tokens = append(tokens, operandToken(tok))

		case efp.TokenTypeFunction:
			if tok.TSubType == efp.TokenSubTypeStart {
				switch strings.ToUpper(tok.TValue) {
				case efpArray:
					frames = append(frames, frameArray)
					rowsInArray = 0
					tokens = append(tokens, Token{Type: TokenLeftBrace, Value: "{"})
				case efpArrayRow:
					frames = append(frames, frameArrayRow)
					if rowsInArray > 0 {
						tokens = append(tokens, Token{Type: TokenSemicolon, Value: ";"})
					}
					rowsInArray++
				default:
					frames = append(frames, frameFunction)
					tokens = append(tokens,
						Token{Type: TokenFunction, Value: tok.TValue},
						Token{Type: TokenLeftParen, Value: "("})
				}
				continue
			}
			if len(frames) == 0 {
				return nil, fmt.Errorf("unbalanced closing bracket")
			}
			frame := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			switch frame {
			case frameArray:
				tokens = append(tokens, Token{Type: TokenRightBrace, Value: "}"})
			case frameFunction:
				tokens = append(tokens, Token{Type: TokenRightParen, Value: ")"})
			}

		case efp.TokenTypeSubexpression:
			if tok.TSubType == efp.TokenSubTypeStart {
				frames = append(frames, frameSubexpression)
				tokens = append(tokens, Token{Type: TokenLeftParen, Value: "("})
				continue
			}
			if len(frames) == 0 || frames[len(frames)-1] != frameSubexpression {
				return nil, fmt.Errorf("unbalanced closing parenthesis")
			}
			frames = frames[:len(frames)-1]
			tokens = append(tokens, Token{Type: TokenRightParen, Value: ")"})

		case efp.TokenTypeArgument:
			// the separator between array rows arrives as an argument of the
			// array itself; the next row start emits the semicolon
			if len(frames) > 0 && frames[len(frames)-1] == frameArray {
				continue
			}
			tokens = append(tokens, Token{Type: TokenComma, Value: ","})

		case efp.TokenTypeOperatorPrefix:
			tokens = append(tokens, Token{Type: TokenPrefixOp, Value: tok.TValue})

		case efp.TokenTypeOperatorPostfix:
			tokens = append(tokens, Token{Type: TokenPostfixOp, Value: tok.TValue})

		case efp.TokenTypeOperatorInfix:
			if tok.TSubType == efp.TokenSubTypeIntersection || tok.TSubType == efp.TokenSubTypeUnion {
				return nil, fmt.Errorf("range intersection and union are not supported")
			}
			tokens = append(tokens, Token{Type: TokenBinaryOp, Value: tok.TValue})

		case efp.TokenTypeNoop:
			// efp reports a prefix + as a noop
			if tok.TValue == "+" {
				tokens = append(tokens, Token{Type: TokenPrefixOp, Value: "+"})
			}

		case efp.TokenTypeWhitespace:

		default:
			return nil, fmt.Errorf("unexpected token %q", tok.TValue)
		}
	}
	if len(frames) != 0 {
		return nil, fmt.Errorf("unclosed bracket in formula")
	}
	return append(tokens, Token{Type: TokenEOF}), nil
}

func operandToken(tok efp.Token) Token {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		return Token{Type: TokenNumber, Value: tok.TValue}
	case efp.TokenSubTypeText:
		return Token{Type: TokenString, Value: tok.TValue}
	case efp.TokenSubTypeLogical:
		return Token{Type: TokenBoolean, Value: strings.ToUpper(tok.TValue)}
	case efp.TokenSubTypeError:
		return Token{Type: TokenError, Value: tok.TValue}
	}
	return Token{Type: TokenReference, Value: tok.TValue}
}

// stitchBrackets re-joins an operand whose square brackets are left open,
// consuming the separators and operands efp split it into. it returns the
// joined text and the index of the last consumed token.
func stitchBrackets(raw []efp.Token, i int) (string, int) {
	value := raw[i].TValue
	depth := bracketDepth(value)
	for depth > 0 && i+1 < len(raw) {
		i++
		if raw[i].TType == efp.TokenTypeWhitespace {
			continue
		}
		part := raw[i].TValue
		value += part
		depth += bracketDepth(part)
	}
	return value, i
}

func bracketDepth(s string) int {
	return strings.Count(s, "[") - strings.Count(s, "]")
}
