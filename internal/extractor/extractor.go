// Copyright (c) 2026 Neomantra Corp

// Package extractor runs the single-file pipeline: open workbook, sanitize
// headers, infer column types, bulk-append rows into an in-process analytic
// engine, apply the optional transform, and emit Parquet.
package extractor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/transform"
	"github.com/neomantra/xlparq/internal/workbook"
)

///////////////////////////////////////////////////////////////////////////////

// maxTypeInferRows bounds the header-prefix scan used for type inference.
const maxTypeInferRows = 200

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Options configures one Extract call.
type Options struct {
	ExcelPath     string
	ParquetPath   string
	EngineThreads int
	Transform     *transform.Transform
}

// Extract runs the full pipeline for one input file. Any step failure is
// returned wrapped as an *xlparq.ExtractorError naming the failing stage.
func Extract(ctx context.Context, opts Options) error {
	wb, err := workbook.Open(opts.ExcelPath)
	if err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageOpenWorkbook, err)
	}
	defer wb.Close()

	rows, err := wb.ReadRows()
	if err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageOpenWorkbook, err)
	}
	if len(rows) == 0 {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageHeader, fmt.Errorf("workbook sheet %q has no rows", wb.SheetName()))
	}

	headers := sanitizeHeaders(rows[0])
	dataRows := rows[1:]

	colTypes := inferColumnTypes(headers, dataRows)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageCreateTable, err)
	}
	defer db.Close()

	threads := opts.EngineThreads
	if threads < 1 {
		threads = 1
	} else if threads > 32 {
		threads = 32
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d", threads)); err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageCreateTable, err)
	}

	if err := createRawTable(ctx, db, headers, colTypes); err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageCreateTable, err)
	}

	if err := appendRows(ctx, db, headers, colTypes, dataRows); err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageAppend, err)
	}

	query := transform.BuildQuery(opts.Transform)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE t AS %s", query)); err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageTransform, err)
	}

	outPath := filepath.ToSlash(opts.ParquetPath)
	copyStmt := fmt.Sprintf("COPY t TO %s (FORMAT PARQUET, COMPRESSION SNAPPY)", xlparq.SQLStringLiteral(outPath))
	if _, err := db.ExecContext(ctx, copyStmt); err != nil {
		return xlparq.NewExtractorError(opts.ExcelPath, xlparq.StageEmitParquet, err)
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////
// E2 — header sanitization and dedup

// sanitizeHeaders turns the header row into unique, SQL-safe column names.
// Empty cells become col_<i>; every non-alphanumeric character becomes an
// underscore; duplicates get a _<k> suffix where k is the 1-based
// occurrence index (the first occurrence keeps its bare name), moving on
// to the next k when that name is already taken by another column.
func sanitizeHeaders(headerRow []workbook.Cell) []string {
	seen := make(map[string]int, len(headerRow))
	used := make(map[string]bool, len(headerRow))
	names := make([]string, len(headerRow))

	for i, cell := range headerRow {
		raw := strings.TrimSpace(cell.Text)
		var name string
		if raw == "" {
			name = fmt.Sprintf("col_%d", i)
		} else {
			name = nonAlnum.ReplaceAllString(raw, "_")
		}

		base := name
		seen[base]++
		k := seen[base]
		if k > 1 {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		for used[name] {
			k++
			name = fmt.Sprintf("%s_%d", base, k)
		}
		seen[base] = k
		used[name] = true
		names[i] = name
	}
	return names
}

///////////////////////////////////////////////////////////////////////////////
// E3 — type inference

type colType int

const (
	typeUnknown colType = iota
	typeBool
	typeInt
	typeDouble
	typeText
)

func (t colType) sqlType() string {
	switch t {
	case typeBool:
		return "BOOLEAN"
	case typeInt:
		return "BIGINT"
	case typeDouble:
		return "DOUBLE"
	default:
		return "TEXT"
	}
}

// inferColumnTypes scans up to maxTypeInferRows data rows and finalizes
// each column's type in the lattice Unknown < Bool|Int|Double < Text.
func inferColumnTypes(headers []string, dataRows [][]workbook.Cell) []colType {
	types := make([]colType, len(headers))

	limit := len(dataRows)
	if limit > maxTypeInferRows {
		limit = maxTypeInferRows
	}

	for r := 0; r < limit; r++ {
		row := dataRows[r]
		allText := true
		for c := range headers {
			var cell workbook.Cell
			if c < len(row) {
				cell = row[c]
			}
			types[c] = joinCell(types[c], cell)
			if types[c] != typeText {
				allText = false
			}
		}
		if allText {
			break
		}
	}

	for c, t := range types {
		if t == typeUnknown {
			types[c] = typeText
		}
	}
	return types
}

// joinCell applies one lattice-update rule for a single cell against the
// column's running type.
func joinCell(cur colType, cell workbook.Cell) colType {
	switch cell.Kind {
	case workbook.KindEmpty:
		return cur

	case workbook.KindText:
		if cell.Text == "" {
			return cur
		}
		return typeText

	case workbook.KindBool:
		if cur == typeUnknown || cur == typeBool {
			return typeBool
		}
		return typeText

	case workbook.KindNumber:
		intLike := !math.IsNaN(cell.Num) && !math.IsInf(cell.Num, 0) && math.Trunc(cell.Num) == cell.Num
		switch cur {
		case typeUnknown:
			if intLike {
				return typeInt
			}
			return typeDouble
		case typeInt:
			if intLike {
				return typeInt
			}
			return typeDouble
		case typeDouble:
			return typeDouble
		default: // Bool, Text
			return typeText
		}
	}
	return cur
}

///////////////////////////////////////////////////////////////////////////////
// E4 — staging table

func createRawTable(ctx context.Context, db *sql.DB, headers []string, types []colType) error {
	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = fmt.Sprintf("%s %s", xlparq.QuoteIdent(h), types[i].sqlType())
	}
	stmt := fmt.Sprintf("CREATE TABLE raw (%s)", strings.Join(cols, ", "))
	_, err := db.ExecContext(ctx, stmt)
	return err
}

///////////////////////////////////////////////////////////////////////////////
// E5 — bulk append via the Appender

// appendRows bulk-loads dataRows into "raw" through the engine's Appender,
// wrapped in a single explicit transaction.
func appendRows(ctx context.Context, db *sql.DB, headers []string, types []colType, dataRows [][]workbook.Cell) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	appendErr := conn.Raw(func(driverConn any) error {
		dconn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dconn, "", "raw")
		if err != nil {
			return err
		}
		defer appender.Close()

		values := make([]driver.Value, len(headers))
		for _, row := range dataRows {
			for c := range headers {
				var cell workbook.Cell
				if c < len(row) {
					cell = row[c]
				}
				values[c] = cellToValue(cell, types[c])
			}
			if err := appender.AppendRow(values...); err != nil {
				return err
			}
		}
		return appender.Flush()
	})

	if appendErr != nil {
		tx.Rollback()
		return appendErr
	}
	return tx.Commit()
}

// cellToValue converts one cell to the driver value appropriate for the
// column's finalized type, per the Int/Double/Bool/Text scratch-slot rules.
// A cell that doesn't fit the column's type yields NULL rather than a
// silently misparsed value.
func cellToValue(cell workbook.Cell, t colType) driver.Value {
	switch t {
	case typeText:
		if cell.Kind == workbook.KindEmpty {
			return nil
		}
		return cell.Text

	case typeInt:
		switch cell.Kind {
		case workbook.KindNumber:
			if !math.IsNaN(cell.Num) && !math.IsInf(cell.Num, 0) && math.Trunc(cell.Num) == cell.Num &&
				cell.Num >= math.MinInt64 && cell.Num < math.MaxInt64 {
				return int64(cell.Num)
			}
			return nil
		default:
			return nil
		}

	case typeDouble:
		switch cell.Kind {
		case workbook.KindNumber:
			return cell.Num
		default:
			return nil
		}

	case typeBool:
		if cell.Kind == workbook.KindBool {
			return cell.Bool
		}
		return nil
	}
	return nil
}
