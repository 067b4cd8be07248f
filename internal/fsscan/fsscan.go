// Copyright (c) 2026 Neomantra Corp

// Package fsscan enumerates datasets and input files, stats them, and
// enforces the file-stability gate.
package fsscan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/neomantra/xlparq"
)

///////////////////////////////////////////////////////////////////////////////

const (
	quickHashChunk  = 64 * 1024
	stabilitySample = 700 * time.Millisecond
)

var acceptedExtensions = map[string]bool{
	".xlsx": true,
	".xlsb": true,
}

func isExcelTempFile(name string) bool {
	return strings.HasPrefix(name, "~$")
}

func isExcelFile(name string) bool {
	return acceptedExtensions[strings.ToLower(filepath.Ext(name))]
}

///////////////////////////////////////////////////////////////////////////////

// DiscoverDatasetModes enumerates input_root's immediate subdirectories and
// returns base -> set of modes present.
func DiscoverDatasetModes(inputRoot string) (map[string]map[xlparq.RunMode]bool, error) {
	entries, err := os.ReadDir(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", xlparq.ErrDiscovery, err)
	}

	result := make(map[string]map[xlparq.RunMode]bool)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		base, mode, ok := parseDatasetDirName(e.Name())
		if !ok {
			continue
		}
		if result[base] == nil {
			result[base] = make(map[xlparq.RunMode]bool)
		}
		result[base][mode] = true
	}
	return result, nil
}

// DiscoverDatasets returns the sorted list of dataset base names.
func DiscoverDatasets(inputRoot string) ([]string, error) {
	modes, err := DiscoverDatasetModes(inputRoot)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(modes))
	for base := range modes {
		names = append(names, base)
	}
	sort.Strings(names)
	return names, nil
}

func parseDatasetDirName(name string) (base string, mode xlparq.RunMode, ok bool) {
	switch {
	case strings.HasSuffix(name, "_single"):
		base = strings.TrimSuffix(name, "_single")
		if base == "" {
			return "", 0, false
		}
		return base, xlparq.Single, true
	case strings.HasSuffix(name, "_multi"):
		base = strings.TrimSuffix(name, "_multi")
		if base == "" {
			return "", 0, false
		}
		return base, xlparq.Multi, true
	default:
		return "", 0, false
	}
}

// DatasetDir returns the input subdirectory for (dataset, mode).
func DatasetDir(inputRoot, dataset string, mode xlparq.RunMode) string {
	suffix := "_single"
	if mode == xlparq.Multi {
		suffix = "_multi"
	}
	return filepath.Join(inputRoot, dataset+suffix)
}

///////////////////////////////////////////////////////////////////////////////

// StatFile builds a FileStamp for path. A failed quick-hash read degrades
// to the "ERR" sentinel rather than failing the whole stat, since a missing
// hash should force a rebuild, not abort a scan.
func StatFile(path string) (xlparq.FileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return xlparq.FileStamp{}, fmt.Errorf("stat %s: %w", path, err)
	}

	hash, err := quickHash(path, info.Size())
	if err != nil {
		hash = xlparq.ErrQuickHash
	}

	return xlparq.FileStamp{
		Path:        path,
		Size:        info.Size(),
		MtimeUnixMs: info.ModTime().UnixMilli(),
		QuickHash:   hash,
	}, nil
}

// quickHash hashes the first 64KiB and last 64KiB of the file (tail omitted
// if the file is <=64KiB).
func quickHash(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()

	head := make([]byte, quickHashChunk)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	h.Write(head[:n])

	if size > quickHashChunk {
		tailLen := int64(quickHashChunk)
		if _, err := f.Seek(-tailLen, io.SeekEnd); err != nil {
			return "", err
		}
		tail := make([]byte, quickHashChunk)
		n2, err := io.ReadFull(f, tail)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return "", err
		}
		h.Write(tail[:n2])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

///////////////////////////////////////////////////////////////////////////////

// isStable applies the stability gate to one candidate file.
func isStable(path string, info os.FileInfo, stableSeconds int) bool {
	if stableSeconds > 0 {
		age := time.Since(info.ModTime())
		return age >= time.Duration(stableSeconds)*time.Second
	}
	return isFileSizeStable(path)
}

// isFileSizeStable samples the file size twice with a gap, defending
// against in-place writes or copy-in-progress.
func isFileSizeStable(path string) bool {
	s1, err := os.Stat(path)
	if err != nil {
		return false
	}
	time.Sleep(stabilitySample)
	s2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return s1.Size() == s2.Size()
}

func listCandidates(dir string, stableSeconds int) ([]os.FileInfo, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var infos []os.FileInfo
	var paths []string
	for _, e := range entries {
		if e.IsDir() || isExcelTempFile(e.Name()) || !isExcelFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !isStable(path, info, stableSeconds) {
			continue
		}
		infos = append(infos, info)
		paths = append(paths, path)
	}
	return infos, paths, nil
}

// PickNewest returns the one accepted file with the greatest mtime in a
// Single-mode dataset directory.
func PickNewest(dir string, stableSeconds int) (string, error) {
	infos, paths, err := listCandidates(dir, stableSeconds)
	if err != nil {
		return "", fmt.Errorf("%w: %s", xlparq.ErrDiscovery, err)
	}

	best := -1
	var bestMtime time.Time
	for i, info := range infos {
		if best == -1 || info.ModTime().After(bestMtime) {
			best = i
			bestMtime = info.ModTime()
		}
	}
	if best == -1 {
		return "", xlparq.ErrNoStableInput
	}
	return paths[best], nil
}

// ListAll returns every accepted file in a Multi-mode dataset directory,
// sorted lexicographically by path.
func ListAll(dir string, stableSeconds int) ([]string, error) {
	_, paths, err := listCandidates(dir, stableSeconds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", xlparq.ErrDiscovery, err)
	}
	sort.Strings(paths)
	return paths, nil
}

///////////////////////////////////////////////////////////////////////////////

// BuildRunPlan resolves the input files for one (dataset, mode) run.
func BuildRunPlan(inputRoot, dataset string, mode xlparq.RunMode, stableSeconds int) (xlparq.RunPlan, error) {
	dir := DatasetDir(inputRoot, dataset, mode)
	if _, err := os.Stat(dir); err != nil {
		return xlparq.RunPlan{}, fmt.Errorf("%w: dataset dir %s: %s", xlparq.ErrDiscovery, dir, err)
	}

	var files []string
	var err error
	switch mode {
	case xlparq.Single:
		var f string
		f, err = PickNewest(dir, stableSeconds)
		if err == nil {
			files = []string{f}
		}
	case xlparq.Multi:
		files, err = ListAll(dir, stableSeconds)
		if err == nil && len(files) == 0 {
			err = xlparq.ErrNoStableInput
		}
	}
	if err != nil {
		return xlparq.RunPlan{}, err
	}

	return xlparq.RunPlan{Dataset: dataset, Mode: mode, Files: files}, nil
}
