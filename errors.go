// Copyright (c) 2026 Neomantra Corp

package xlparq

import "fmt"

var (
	ErrNoStableInput     = fmt.Errorf("no stable input file found")
	ErrDiscovery         = fmt.Errorf("input root missing or unreadable")
	ErrManifestCorrupt   = fmt.Errorf("cache manifest unreadable, treated as absent")
	ErrConfig            = fmt.Errorf("transform config unreadable, proceeding without transform")
	ErrNoSheet           = fmt.Errorf("workbook has no sheets")
	ErrUnsupportedFormat = fmt.Errorf("unsupported workbook format")
)

// ExtractorStage names the Extractor pipeline step that failed.
type ExtractorStage string

const (
	StageOpenWorkbook ExtractorStage = "open_workbook"
	StageHeader       ExtractorStage = "header"
	StageTypeInfer    ExtractorStage = "type_infer"
	StageCreateTable  ExtractorStage = "create_table"
	StageAppend       ExtractorStage = "append"
	StageTransform    ExtractorStage = "transform"
	StageEmitParquet  ExtractorStage = "emit_parquet"
)

// ExtractorError wraps a single-file extraction failure with enough context
// to report it: which file, which pipeline stage, and the underlying cause.
type ExtractorError struct {
	Path  string
	Stage ExtractorStage
	Cause error
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("extract %s: stage=%s: %s", e.Path, e.Stage, e.Cause)
}

func (e *ExtractorError) Unwrap() error {
	return e.Cause
}

// NewExtractorError builds an ExtractorError for the given pipeline stage.
func NewExtractorError(path string, stage ExtractorStage, cause error) error {
	return &ExtractorError{Path: path, Stage: stage, Cause: cause}
}
