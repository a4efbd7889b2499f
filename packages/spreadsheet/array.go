package spreadsheet

// spillBlock is the evaluated value of one array formula, shared by every
// cell of its block. a formula that raised an error fills the whole block
// with that error.
type spillBlock struct {
	rows [][]Scalar
	err  *Scalar
}

// at returns the value spilled into the cell at (rowOffset, colOffset)
func (b spillBlock) at(rowOffset, colOffset int) Scalar {
	if b.err != nil {
		return *b.err
	}
	if rowOffset >= len(b.rows) || colOffset >= len(b.rows[rowOffset]) {
		return ErrorValue(ErrorCodeValue)
	}
	return b.rows[rowOffset][colOffset]
}

// arrayFormulaScalar returns the part of an array formula's result that
// lands on addr. the formula is evaluated once per block, anchored at the
// top-left cell of its range.
func (e *Evaluator) arrayFormulaScalar(sheet int, addr CellAddress, f *Formula) (Scalar, error) {
	bounds := f.Ref.Bounds(sheet)
	rowOffset := addr.Row - bounds.StartRow
	colOffset := addr.Column - bounds.StartColumn
	if rowOffset < 0 || colOffset < 0 || rowOffset >= bounds.Rows() || colOffset >= bounds.Columns() {
		return ErrorValue(ErrorCodeRef), nil
	}

	anchor := CellAddress{Column: bounds.StartColumn, Row: bounds.StartRow}
	block, err := e.spill(sheet, anchor, f.Expression)
	if err != nil {
		return Scalar{}, err
	}
	return block.at(rowOffset, colOffset), nil
}

// spill evaluates and caches the block anchored at anchor. a cell of the
// block that is read while the block is still being computed raises #REF!.
func (e *Evaluator) spill(sheet int, anchor CellAddress, text string) (spillBlock, error) {
	key := cellKey{sheet: sheet, col: anchor.Column, row: anchor.Row}
	if block, ok := e.spills[key]; ok {
		return block, nil
	}
	if e.spillStack.isProcessing(key) {
		return spillBlock{}, raise(ErrorCodeRef, "array formula at %s reads its own block", anchor)
	}

	e.spillStack.push(key)
	defer e.spillStack.pop()

	var block spillBlock
	node := e.formulas.GetAST(sheet, text)
	if node == nil {
		s := ErrorValue(ErrorCodeName)
		block.err = &s
	} else {
		r, err := e.eval(node, scope{sheet: sheet, origin: anchor})
		if err != nil {
			s, err := boundaryScalar(err)
			if err != nil {
				return spillBlock{}, err
			}
			block.err = &s
		} else {
			block.rows = r.Matrix()
		}
	}

	e.spills[key] = block
	e.logger.Trace().
		Int("sheet", sheet).
		Str("anchor", anchor.String()).
		Int("rows", len(block.rows)).
		Msg("array formula evaluated")
	return block, nil
}
