package explog

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "results"

// WriteXLSX renders the table as a single-sheet workbook. Metric and added
// columns are written as numbers, parameters as text unless numeric.
func (t *Table) WriteXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, 1, stringsToAny(t.Columns())); err != nil {
		return nil, err
	}

	for i, r := range t.rows {
		cells := make([]any, 0, len(t.Columns()))
		cells = append(cells, r.Epochs)
		for _, m := range r.Metrics {
			cells = append(cells, xlsxNumber(m))
		}
		for _, p := range r.Params {
			if num, ok := p.Float(); ok && p.IsNumeric() {
				cells = append(cells, num)
			} else {
				cells = append(cells, p.String())
			}
		}
		for _, k := range t.extraKeys {
			cells = append(cells, xlsxNumber(t.extra[k][i]))
		}
		if err := setRow(f, i+2, cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func setRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// xlsxNumber keeps NaN and infinities readable; spreadsheets reject them as
// numbers.
func xlsxNumber(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
