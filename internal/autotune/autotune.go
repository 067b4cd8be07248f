// Copyright (c) 2026 Neomantra Corp

// Package autotune translates observed hardware and workload size into a
// worker/thread plan. It is a pure function of its inputs — no I/O, no
// globals — so it is exhaustively table-tested.
package autotune

import "github.com/neomantra/xlparq"

///////////////////////////////////////////////////////////////////////////////

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	return minInt(maxInt(v, lo), hi)
}

///////////////////////////////////////////////////////////////////////////////

// Single returns the engine thread budget for a Single-mode run.
func Single(hw xlparq.HwInfo) int {
	cores := maxInt(hw.LogicalCPUs, 1)
	ram := hw.TotalRamMB

	switch {
	case ram < 4096:
		return 1
	case ram < 8192:
		return minInt(2, cores)
	case hw.DiskKind == xlparq.DiskSsd:
		return minInt(4, cores)
	default: // Hdd or Unknown
		return minInt(2, cores)
	}
}

// Multi returns the worker count and per-worker engine thread budget for a
// Multi-mode run over fileCount changed files.
func Multi(hw xlparq.HwInfo, fileCount int) xlparq.TuneResult {
	cores := maxInt(hw.LogicalCPUs, 1)
	ram := hw.TotalRamMB

	var baseWorkers int
	if hw.DiskKind == xlparq.DiskSsd {
		baseWorkers = maxInt(cores/2, 2)
	} else {
		baseWorkers = maxInt(cores/3, 1)
	}

	var ramCapWorkers int
	switch {
	case ram < 4096:
		ramCapWorkers = 1
	case ram < 8192:
		ramCapWorkers = 2
	case ram < 16384:
		ramCapWorkers = 4
	default:
		ramCapWorkers = 8
	}

	files := maxInt(fileCount, 1)
	workers := maxInt(minInt(minInt(baseWorkers, ramCapWorkers), files), 1)

	var threadsPerWorker int
	switch {
	case workers >= 6:
		threadsPerWorker = 1
	case workers >= 3:
		threadsPerWorker = minInt(2, cores)
	default:
		threadsPerWorker = maxInt(Single(hw), 1)
	}

	return xlparq.TuneResult{
		Workers:       workers,
		ThreadsPerJob: maxInt(threadsPerWorker, 1),
	}
}

///////////////////////////////////////////////////////////////////////////////

// HeavyFirst decides whether to serialize the largest file before the
// parallel phase: the largest file dwarfs the pack either in absolute
// terms (>=30MB) or relative to the runner-up (>=1.5x).
//
// sizesDesc must already be sorted largest-first; fewer than two entries
// can never trigger heavy-first.
func HeavyFirst(sizesDesc []int64) bool {
	if len(sizesDesc) < 2 {
		return false
	}
	const mb = 1024 * 1024
	largest := float64(sizesDesc[0]) / mb
	second := float64(sizesDesc[1]) / mb

	if largest >= 30.0 {
		return true
	}
	return second > 0 && largest >= 1.5*second
}
