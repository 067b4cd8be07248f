// Copyright (c) 2026 Neomantra Corp

// Package cachestore loads and saves the per-(dataset, mode) manifest, the
// Multi-mode parquet index, and the Single-mode current pointer, and owns
// the cache directory layout.
package cachestore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/neomantra/xlparq"
	pqfile "github.com/apache/arrow-go/v18/parquet/file"
	"github.com/segmentio/encoding/json"
)

///////////////////////////////////////////////////////////////////////////////

// ManifestPath returns <cache_root>/<dataset>/<mode>_cache.json.
func ManifestPath(cacheRoot, dataset string, mode xlparq.RunMode) string {
	return filepath.Join(cacheRoot, dataset, mode.String()+"_cache.json")
}

// Load returns the previously-persisted manifest, or nil if missing or
// unparseable — corruption self-heals on the next successful run.
func Load(cacheRoot, dataset string, mode xlparq.RunMode) *xlparq.CacheMeta {
	p := ManifestPath(cacheRoot, dataset, mode)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil
	}
	var meta xlparq.CacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// Save pretty-prints meta as JSON to its manifest path, creating parent
// directories as needed.
func Save(cacheRoot string, meta xlparq.CacheMeta) error {
	p := ManifestPath(cacheRoot, meta.Dataset, meta.Mode)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("mkdir for manifest %s: %w", p, err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("write manifest %s: %w", p, err)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////////

// Diff computes the next manifest and the set of changed stamps. A stamp
// is changed if there is no matching previous entry or any of (size,
// mtime, quick_hash) differs; "ERR" hashes always differ.
func Diff(prev *xlparq.CacheMeta, dataset string, mode xlparq.RunMode, current []xlparq.FileStamp) (xlparq.CacheMeta, []xlparq.FileStamp) {
	next := xlparq.CacheMeta{
		Dataset: dataset,
		Mode:    mode,
		Stamps:  make(map[string]xlparq.FileStamp, len(current)),
	}

	var prevStamps map[string]xlparq.FileStamp
	if prev != nil {
		prevStamps = prev.Stamps
	}

	var changed []xlparq.FileStamp
	for _, st := range current {
		next.Stamps[st.Path] = st

		old, ok := prevStamps[st.Path]
		if !ok || !old.Same(st) {
			changed = append(changed, st)
		}
	}

	return next, changed
}

// Deleted returns the paths present in prev but absent from current,
// in lexicographic order.
func Deleted(prev *xlparq.CacheMeta, current []xlparq.FileStamp) []string {
	if prev == nil {
		return nil
	}
	currentSet := make(map[string]bool, len(current))
	for _, st := range current {
		currentSet[st.Path] = true
	}

	var deleted []string
	for path := range prev.Stamps {
		if !currentSet[path] {
			deleted = append(deleted, path)
		}
	}
	sort.Strings(deleted)
	return deleted
}

///////////////////////////////////////////////////////////////////////////////
// Single-mode current pointer

// SingleDir returns <cache_root>/<dataset>/single.
func SingleDir(cacheRoot, dataset string) string {
	return filepath.Join(cacheRoot, dataset, "single")
}

// CurrentPointerPath returns the pointer file path.
func CurrentPointerPath(cacheRoot, dataset string) string {
	return filepath.Join(SingleDir(cacheRoot, dataset), "current_parquet.txt")
}

// ReadCurrentPointer returns the trimmed basename the pointer names, or ""
// if the pointer is missing or empty.
func ReadCurrentPointer(cacheRoot, dataset string) string {
	data, err := os.ReadFile(CurrentPointerPath(cacheRoot, dataset))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteCurrentPointer writes the one-line pointer file.
func WriteCurrentPointer(cacheRoot, dataset, parquetName string) error {
	p := CurrentPointerPath(cacheRoot, dataset)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(parquetName+"\n"), 0644)
}

// SingleOutputsOK is the output integrity gate for Single mode: the
// pointer must exist, name a file under single/, and that file must exist
// and be a readable Parquet footer.
func SingleOutputsOK(cacheRoot, dataset string) bool {
	name := ReadCurrentPointer(cacheRoot, dataset)
	if name == "" {
		return false
	}
	p := filepath.Join(SingleDir(cacheRoot, dataset), name)
	return verifyParquet(p)
}

///////////////////////////////////////////////////////////////////////////////
// Multi-mode parquet index

// MultiDir returns <cache_root>/<dataset>/multi.
func MultiDir(cacheRoot, dataset string) string {
	return filepath.Join(cacheRoot, dataset, "multi")
}

// DailyDir returns <cache_root>/<dataset>/multi/daily, where Multi Parquet
// files actually live.
func DailyDir(cacheRoot, dataset string) string {
	return filepath.Join(MultiDir(cacheRoot, dataset), "daily")
}

// ParquetMapPath returns the TSV index path.
func ParquetMapPath(cacheRoot, dataset string) string {
	return filepath.Join(MultiDir(cacheRoot, dataset), "parquet_map.tsv")
}

// LoadParquetMap reads the TSV index; empty lines and malformed lines are
// ignored on read. A missing file returns an empty map.
func LoadParquetMap(path string) map[string]string {
	m := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return m
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// SaveParquetMap writes the TSV index sorted by key for deterministic
// diffs between runs.
func SaveParquetMap(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\t')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// MultiOutputsOK is the output integrity gate for Multi mode: the map must
// exist and be non-empty, and every current input path must have an entry
// whose target Parquet file exists and parses.
func MultiOutputsOK(cacheRoot, dataset string, current []xlparq.FileStamp) bool {
	mapPath := ParquetMapPath(cacheRoot, dataset)
	if _, err := os.Stat(mapPath); err != nil {
		return false
	}
	m := LoadParquetMap(mapPath)
	if len(m) == 0 {
		return false
	}

	daily := DailyDir(cacheRoot, dataset)
	for _, st := range current {
		name, ok := m[st.Path]
		if !ok {
			return false
		}
		if !verifyParquet(filepath.Join(daily, name)) {
			return false
		}
	}
	return true
}

///////////////////////////////////////////////////////////////////////////////

// verifyParquet checks that path exists and its Parquet footer parses,
// catching truncated or corrupt files a crashed prior run could have left
// behind.
func verifyParquet(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	r, err := pqfile.OpenParquetFile(path, false)
	if err != nil {
		return false
	}
	defer r.Close()
	return true
}
