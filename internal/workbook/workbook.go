// Copyright (c) 2026 Neomantra Corp

// Package workbook opens a spreadsheet input and exposes its first sheet
// as a snapshot of typed cells, insulating the rest of the pipeline from
// the underlying spreadsheet library.
package workbook

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/neomantra/xlparq"
)

///////////////////////////////////////////////////////////////////////////////

// Kind is the raw cell shape as read from the spreadsheet, before the
// extractor's type-inference lattice runs over it.
type Kind int

const (
	KindEmpty Kind = iota
	KindBool
	KindNumber
	KindText
)

// Cell is one spreadsheet cell, classified by its underlying XML cell
// type rather than by parsing its formatted display string.
type Cell struct {
	Kind Kind
	Bool bool
	Num  float64
	Text string
}

///////////////////////////////////////////////////////////////////////////////

// Workbook is an opened spreadsheet, positioned on its first sheet.
type Workbook struct {
	f     *excelize.File
	sheet string
}

// Open opens path and selects its first sheet. XLSB inputs are rejected
// with ErrUnsupportedFormat: excelize, like the rest of the Go ecosystem,
// has no binary-format (BIFF12) spreadsheet reader.
func Open(path string) (*Workbook, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".xlsb" {
		return nil, xlparq.ErrUnsupportedFormat
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, xlparq.ErrNoSheet
	}

	return &Workbook{f: f, sheet: sheets[0]}, nil
}

// Close releases the underlying file handle.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// SheetName returns the selected sheet's name.
func (w *Workbook) SheetName() string {
	return w.sheet
}

///////////////////////////////////////////////////////////////////////////////

// ReadRows snapshots every row of the sheet as typed cells. Row 0 is the
// header row; callers are expected to slice it off before data processing.
func (w *Workbook) ReadRows() ([][]Cell, error) {
	raw, err := w.f.GetRows(w.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	rows := make([][]Cell, len(raw))
	for r, line := range raw {
		cells := make([]Cell, len(line))
		for c, val := range line {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				cells[c] = classify(excelize.CellTypeUnset, val)
				continue
			}
			ct, _ := w.f.GetCellType(w.sheet, axis)
			cells[c] = classify(ct, val)
		}
		rows[r] = cells
	}
	return rows, nil
}

// classify turns one (cell type, raw value) pair into a Cell. A cell with
// no type attribute is a number in the file format (spreadsheet writers
// omit the attribute for numbers) and is parsed like an explicit number
// cell; a date stored that way as a serial number therefore reads as a
// Number. Typed date cells, string formula results, and errors fold to
// Text — the extractor's lattice only needs to distinguish
// Bool/Number/Text/Empty.
func classify(ct excelize.CellType, raw string) Cell {
	switch ct {
	case excelize.CellTypeBool:
		return Cell{Kind: KindBool, Bool: raw == "1" || strings.EqualFold(raw, "TRUE"), Text: raw}
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if raw == "" {
			return Cell{Kind: KindEmpty}
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Cell{Kind: KindText, Text: raw}
		}
		return Cell{Kind: KindNumber, Num: n, Text: raw}
	default:
		if raw == "" {
			return Cell{Kind: KindEmpty}
		}
		return Cell{Kind: KindText, Text: raw}
	}
}
