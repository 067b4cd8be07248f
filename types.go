// Copyright (c) 2026 Neomantra Corp

// Package xlparq is an incremental batch extractor that converts spreadsheet
// inputs (XLSX/XLSB), organized by dataset, into compressed columnar Parquet
// artifacts, reusing prior work when the inputs have not changed.
package xlparq

import "strings"

///////////////////////////////////////////////////////////////////////////////

// RunMode selects how a dataset's inputs are turned into Parquet outputs.
type RunMode int

const (
	// Single picks the newest stable input file and produces one Parquet.
	Single RunMode = iota
	// Multi produces one Parquet per input file, maintained over time.
	Multi
)

// String returns the lowercase mode name used in paths and CLI flags.
func (m RunMode) String() string {
	switch m {
	case Single:
		return "single"
	case Multi:
		return "multi"
	default:
		return "unknown"
	}
}

// ParseRunMode parses a CLI/config mode string. Anything other than "multi"
// (case-insensitive) is treated as Single, matching the original tool's
// permissive parser.
func ParseRunMode(s string) RunMode {
	if strings.EqualFold(s, "multi") {
		return Multi
	}
	return Single
}

///////////////////////////////////////////////////////////////////////////////

// FileStamp is a content fingerprint for one input file.
type FileStamp struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	MtimeUnixMs int64  `json:"mtime_unix_ms"`
	QuickHash   string `json:"quick_hash"`
}

// ErrQuickHash is the sentinel quick-hash value used when the head/tail read
// failed; it never equals a real hash, so it always forces a rebuild.
const ErrQuickHash = "ERR"

// Same reports whether two stamps are content-equal: identical size,
// mtime, and quick hash, with "ERR" hashes always treated as different.
func (s FileStamp) Same(other FileStamp) bool {
	if s.QuickHash == ErrQuickHash || other.QuickHash == ErrQuickHash {
		return false
	}
	return s.Size == other.Size &&
		s.MtimeUnixMs == other.MtimeUnixMs &&
		s.QuickHash == other.QuickHash
}

///////////////////////////////////////////////////////////////////////////////

// CacheMeta is the persisted manifest for one (dataset, mode).
type CacheMeta struct {
	Dataset string               `json:"dataset"`
	Mode    RunMode              `json:"mode"`
	Stamps  map[string]FileStamp `json:"stamps"`
}

// MarshalJSON/UnmarshalJSON for RunMode so the persisted manifest is a
// readable "single"/"multi" string rather than an integer.
func (m RunMode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *RunMode) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		s = string(b[1 : len(b)-1])
	} else {
		s = string(b)
	}
	*m = ParseRunMode(s)
	return nil
}

///////////////////////////////////////////////////////////////////////////////

// RunPlan is the resolved set of input files FsScan selected for one
// (dataset, mode) run, in the order Extractor should process them.
type RunPlan struct {
	Dataset string
	Mode    RunMode
	Files   []string
}

///////////////////////////////////////////////////////////////////////////////

// DiskKind classifies the storage device under the cache root.
type DiskKind int

const (
	DiskUnknown DiskKind = iota
	DiskSsd
	DiskHdd
)

func (d DiskKind) String() string {
	switch d {
	case DiskSsd:
		return "ssd"
	case DiskHdd:
		return "hdd"
	default:
		return "unknown"
	}
}

// HwInfo is the hardware snapshot AutoTune reasons about. It is produced by
// the hw collaborator package and consumed only as data here.
type HwInfo struct {
	LogicalCPUs int
	TotalRamMB  int64
	DiskKind    DiskKind
}

///////////////////////////////////////////////////////////////////////////////

// TuneResult is AutoTune's decision for a Multi-mode run.
type TuneResult struct {
	Workers       int
	ThreadsPerJob int
}
