package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

type options struct {
	workbook   string
	sheet      string
	cell       string
	formula    string
	precedents bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "formulaeval",
		Short: "Evaluate cells and formulas of a workbook snapshot",
		Long: `Evaluate a cell or an ad-hoc formula against a YAML workbook snapshot.

Array results are printed one row per line, values separated by tabs.

Examples:
  formulaeval --workbook book.yaml --cell B2
  formulaeval --workbook book.yaml --sheet Data --formula "=SUM(A1:A10)"
  formulaeval --workbook book.yaml --cell C4 --precedents`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.workbook, "workbook", "w", "", "path to the YAML workbook snapshot")
	flags.StringVarP(&opts.sheet, "sheet", "s", "", "sheet to evaluate on (default: the first sheet)")
	flags.StringVarP(&opts.cell, "cell", "c", "", "cell to evaluate, such as B2")
	flags.StringVarP(&opts.formula, "formula", "f", "", "formula to evaluate, anchored at A1")
	flags.BoolVar(&opts.precedents, "precedents", false, "list the ranges the cell's formula reads")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log evaluation details to stderr")
	_ = cmd.MarkFlagRequired("workbook")
	cmd.MarkFlagsMutuallyExclusive("cell", "formula")
	cmd.MarkFlagsOneRequired("cell", "formula")
	return cmd
}

func run(stdout, stderr io.Writer, opts options) error {
	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.TraceLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	f, err := os.Open(opts.workbook)
	if err != nil {
		return err
	}
	defer f.Close()
	wb, err := spreadsheet.DecodeWorkbookYAML(f)
	if err != nil {
		return err
	}
	if len(wb.Sheets) == 0 {
		return errors.New("workbook has no sheets")
	}

	eval := spreadsheet.NewEvaluator(wb, spreadsheet.WithLogger(logger))
	sheet := 0
	if opts.sheet != "" {
		idx, ok := eval.Matrix().SheetIndex(opts.sheet)
		if !ok {
			return fmt.Errorf("unknown sheet %q", opts.sheet)
		}
		sheet = idx
	}
	logger.Debug().
		Str("workbook", opts.workbook).
		Int("sheet", sheet).
		Int("cells", eval.Matrix().Sheet(sheet).GetTotalCells()).
		Msg("workbook loaded")

	if opts.formula != "" {
		r, err := eval.EvaluateFormulaResult(sheet, spreadsheet.CellAddress{Column: 1, Row: 1}, opts.formula)
		if err != nil {
			return err
		}
		printResult(stdout, r)
		return nil
	}

	addr, err := spreadsheet.ParseCellAddress(opts.cell)
	if err != nil {
		return err
	}
	if opts.precedents {
		ranges, err := eval.Precedents(sheet, addr)
		if err != nil {
			return err
		}
		spreadsheet.SortRanges(ranges)
		for _, r := range ranges {
			fmt.Fprintln(stdout, r.String())
		}
		return nil
	}
	v, err := eval.EvaluateCell(sheet, addr)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, v.String())
	return nil
}

func printResult(w io.Writer, r spreadsheet.Result) {
	if !r.IsArray() {
		fmt.Fprintln(w, r.Scalar().String())
		return
	}
	for _, row := range r.Matrix() {
		values := make([]string, len(row))
		for i, s := range row {
			values[i] = s.String()
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
