// Copyright (c) 2026 Neomantra Corp

package orchestrator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// vnOffset is the fixed UTC+07:00 wall clock embedded in Parquet filenames.
// It is deliberately not the host's local timezone, so filenames (and the
// scenarios that assert on them) stay portable across machines.
var vnOffset = time.FixedZone("UTC+7", 7*60*60)

var nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// sanitizeStem turns an input file's basename into a filesystem-safe,
// SQL-safe stem for the output Parquet filename.
func sanitizeStem(excelPath string) string {
	base := filepath.Base(excelPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "file"
	}
	return nonAlnumRe.ReplaceAllString(stem, "_")
}

// buildParquetName names a Parquet output as
// <sanitized_stem>_<DDMMYYYY>_<HHMMSS>_<mtime_unix_ms>.parquet, timestamped
// in the fixed UTC+07:00 wall clock, so re-extractions of the same input
// never collide.
func buildParquetName(excelPath string, mtimeUnixMs int64, now time.Time) string {
	stem := sanitizeStem(excelPath)
	ts := now.In(vnOffset).Format("02012006_150405")
	return fmt.Sprintf("%s_%s_%d.parquet", stem, ts, mtimeUnixMs)
}

var dayFromNameRe = regexp.MustCompile(`(?i)_(\d{2})_(\d{2})_(\d{4})\.(xlsx|xlsb)$`)

// dayFromFilename is a best-effort log-only nicety: some input filenames
// embed a "_DD_MM_YYYY" date, which makes for a friendlier "wrote parquet"
// log line (its "day" field). It has no bearing on the persisted Parquet name or any
// invariant — "unknown-date" is returned when the pattern does not match.
func dayFromFilename(path string) string {
	m := dayFromNameRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "unknown-date"
	}
	dd, mm, yyyy := m[1], m[2], m[3]
	return fmt.Sprintf("%s-%s-%s", yyyy, mm, dd)
}
