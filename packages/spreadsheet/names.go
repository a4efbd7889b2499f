package spreadsheet

import (
	"strings"
)

// globalScope is the scope index of workbook-level names
const globalScope = -1

// nameKey identifies a defined name: its scope (a sheet index, or
// globalScope) and its upper-cased name.
type nameKey struct {
	scope int
	name  string
}

// DefinedNameTable indexes defined names by scope and name. duplicates are
// kept in declaration order.
type DefinedNameTable struct {
	entries map[nameKey][]string
}

// NewDefinedNameTable indexes the given names
func NewDefinedNameTable(names []DefinedName) *DefinedNameTable {
	t := &DefinedNameTable{entries: make(map[nameKey][]string, len(names))}
	for _, dn := range names {
		key := nameKey{scope: globalScope, name: normalizeName(dn.Name)}
		if dn.LocalSheet != nil {
			key.scope = *dn.LocalSheet
		}
		t.entries[key] = append(t.entries[key], dn.Formula)
	}
	return t
}

// lookup finds name as seen from sheet: a sheet-local definition wins over a
// global one. among duplicates the first definition whose text does not
// start with '[' (an external workbook link) is used.
func (t *DefinedNameTable) lookup(sheet int, name string) (nameKey, string, bool) {
	normalized := normalizeName(name)
	for _, key := range []nameKey{
		{scope: sheet, name: normalized},
		{scope: globalScope, name: normalized},
	} {
		formulas, ok := t.entries[key]
		if !ok || len(formulas) == 0 {
			continue
		}
		for _, text := range formulas {
			if !strings.HasPrefix(strings.TrimSpace(text), "[") {
				return key, text, true
			}
		}
		return key, formulas[0], true
	}
	return nameKey{}, "", false
}

// Len returns the number of distinct (scope, name) pairs.
func (t *DefinedNameTable) Len() int {
	return len(t.entries)
}

// resolveName evaluates a defined name in the caller's scope. reference
// text resolves as a range; anything else is evaluated as a formula.
func (e *Evaluator) resolveName(name string, sc scope) (Result, error) {
	key, text, ok := e.names.lookup(sc.sheet, name)
	if !ok {
		return Result{}, raise(ErrorCodeName, "unknown name %s", name)
	}
	if e.nameStack.isProcessing(key) {
		e.logger.Debug().
			Str("name", name).
			Int("scope", key.scope).
			Int("depth", e.nameStack.depth()).
			Msg("circular name reference")
		return Result{}, raise(ErrorCodeRef, "name %s refers to itself", name)
	}

	e.nameStack.push(key)
	defer e.nameStack.pop()

	if node, err := e.parseReference(text); err == nil {
		switch ref := node.(type) {
		case *RangeNode:
			return e.resolveRange(ref.Range, sc)
		case *ReferenceNode:
			return e.resolveRange(CellRange{Start: ref.Address, End: ref.Address, SheetName: ref.SheetName}, sc)
		}
	}

	node := e.formulas.GetAST(sc.sheet, text)
	if node == nil {
		return Result{}, raise(ErrorCodeName, "name %s does not parse", name)
	}
	return e.eval(node, sc)
}
