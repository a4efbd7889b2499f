package spreadsheet

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ASTKey identifies a parsed formula: the sheet index and the normalized
// formula text.
type ASTKey string

func newASTKey(sheet int, normalized string) ASTKey {
	return ASTKey(strconv.Itoa(sheet) + "|" + normalized)
}

// FormulaTable memoizes parsed formulas per sheet. a failed parse is stored
// as a nil node so the text is never parsed again.
type FormulaTable struct {
	parser   FormulaParser
	astCache map[ASTKey]Node
	logger   *zerolog.Logger
}

// NewFormulaTable creates a new formula table
func NewFormulaTable(parser FormulaParser, logger *zerolog.Logger) *FormulaTable {
	return &FormulaTable{
		parser:   parser,
		astCache: make(map[ASTKey]Node),
		logger:   logger,
	}
}

// normalizeFormula trims whitespace and one leading '='.
func normalizeFormula(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "=")
	return strings.TrimSpace(text)
}

// GetAST returns the parsed tree for text on sheet, parsing on first use.
// nil means the text does not parse.
func (ft *FormulaTable) GetAST(sheet int, text string) Node {
	normalized := normalizeFormula(text)
	key := newASTKey(sheet, normalized)
	if node, ok := ft.astCache[key]; ok {
		return node
	}

	node, err := ft.parse(normalized)
	if err != nil {
		ft.logger.Debug().
			Int("sheet", sheet).
			Str("formula", normalized).
			Err(err).
			Msg("formula failed to parse")
		node = nil
	}
	ft.astCache[key] = node
	return node
}

// parse shields the cache from parsers that panic on malformed input.
func (ft *FormulaTable) parse(text string) (node Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			node, err = nil, NewApplicationError(Internal, "parser panicked")
		}
	}()
	return ft.parser.Parse(text)
}

// Count returns the number of cached entries, failures included.
func (ft *FormulaTable) Count() int {
	return len(ft.astCache)
}
