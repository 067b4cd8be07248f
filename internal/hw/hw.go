// Copyright (c) 2026 Neomantra Corp

// Package hw is a best-effort hardware-probing collaborator: it is
// specified only by the HwInfo data it produces, which the autotune
// package reasons about.
package hw

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/neomantra/xlparq"
)

///////////////////////////////////////////////////////////////////////////////

// Detect returns a best-effort hardware snapshot for the given cache root's
// volume. It never fails: unreadable signals degrade to conservative
// defaults (DiskUnknown, a 0 RAM reading) rather than erroring, since
// AutoTune treats "Unknown" the same as "Hdd".
func Detect(cacheRoot string) xlparq.HwInfo {
	return xlparq.HwInfo{
		LogicalCPUs: logicalCPUs(),
		TotalRamMB:  totalRamMB(),
		DiskKind:    diskKindFor(cacheRoot),
	}
}

func logicalCPUs() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// totalRamMB reads /proc/meminfo on Linux; any other platform or read
// failure returns 0, which AutoTune's RAM tiers treat as the smallest tier.
func totalRamMB() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}

// diskKindFor is a conservative stub: without a platform-specific disk
// topology probe, every path reports Unknown, which AutoTune's tables
// treat identically to Hdd.
func diskKindFor(path string) xlparq.DiskKind {
	_ = path
	return xlparq.DiskUnknown
}
