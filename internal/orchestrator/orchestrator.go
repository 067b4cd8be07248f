// Copyright (c) 2026 Neomantra Corp

// Package orchestrator drives one (dataset, mode) run: diff against the
// previous manifest, verify output integrity, schedule the heavy-alone and
// parallel extraction phases, and persist the updated index and manifest.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/autotune"
	"github.com/neomantra/xlparq/internal/cachestore"
	"github.com/neomantra/xlparq/internal/extractor"
	"github.com/neomantra/xlparq/internal/fsscan"
	"github.com/neomantra/xlparq/internal/transform"
)

///////////////////////////////////////////////////////////////////////////////

// ExtractFunc runs the single-file pipeline; production code wires this to
// extractor.Extract. Tests substitute a fake to avoid a real DuckDB/Excel
// round trip.
type ExtractFunc func(ctx context.Context, opts extractor.Options) error

// Config is the per-process configuration shared by every (dataset, mode)
// run.
type Config struct {
	InputRoot     string
	CacheRoot     string
	ConfigDir     string // transform YAML directory; "" defaults to "config"
	StableSeconds int
	Workers       int // 0 = AutoTune decides
	DuckDBThreads int // 0 = AutoTune decides
	Hw            xlparq.HwInfo
	Logger        *slog.Logger
	Extract       ExtractFunc
	Now           func() time.Time // 0 = time.Now; overridable for tests
}

func (c *Config) configDir() string {
	if c.ConfigDir != "" {
		return c.ConfigDir
	}
	return "config"
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) extract() ExtractFunc {
	if c.Extract != nil {
		return c.Extract
	}
	return extractor.Extract
}

///////////////////////////////////////////////////////////////////////////////

// FileResult is one file's extraction outcome within a run.
type FileResult struct {
	Path       string
	OutputName string
	Err        error
}

// RunResult summarizes one (dataset, mode) run for the CLI to report.
type RunResult struct {
	Dataset  string
	Mode     xlparq.RunMode
	Success  int
	Failures []FileResult
}

func (r RunResult) Failed() bool { return len(r.Failures) > 0 }

///////////////////////////////////////////////////////////////////////////////

// Run executes the full contract for one (dataset, mode).
func Run(ctx context.Context, cfg Config, dataset string, mode xlparq.RunMode) (RunResult, error) {
	plan, err := fsscan.BuildRunPlan(cfg.InputRoot, dataset, mode, cfg.StableSeconds)
	if err != nil {
		return RunResult{Dataset: dataset, Mode: mode}, err
	}

	stamps := make([]xlparq.FileStamp, 0, len(plan.Files))
	for _, f := range plan.Files {
		st, err := fsscan.StatFile(f)
		if err != nil {
			return RunResult{Dataset: dataset, Mode: mode}, err
		}
		stamps = append(stamps, st)
	}

	prev := cachestore.Load(cfg.CacheRoot, dataset, mode)

	tr, trErr := transform.Load(filepath.Join(cfg.configDir(), dataset+".yaml"))
	if trErr != nil {
		cfg.logger().Warn("transform config unreadable, proceeding without transform",
			"dataset", dataset, "mode", mode.String(), "error", trErr)
		tr = nil
	}

	switch mode {
	case xlparq.Single:
		return runSingle(ctx, cfg, dataset, plan, stamps, prev, tr)
	default:
		return runMulti(ctx, cfg, dataset, stamps, prev, tr)
	}
}

///////////////////////////////////////////////////////////////////////////////
// Single mode

func runSingle(ctx context.Context, cfg Config, dataset string, plan xlparq.RunPlan, stamps []xlparq.FileStamp, prev *xlparq.CacheMeta, tr *transform.Transform) (RunResult, error) {
	result := RunResult{Dataset: dataset, Mode: xlparq.Single}
	log := cfg.logger()

	next, changed := cachestore.Diff(prev, dataset, xlparq.Single, stamps)

	singleDir := cachestore.SingleDir(cfg.CacheRoot, dataset)
	if err := os.MkdirAll(singleDir, 0755); err != nil {
		return result, fmt.Errorf("mkdir %s: %w", singleDir, err)
	}

	outputsOK := cachestore.SingleOutputsOK(cfg.CacheRoot, dataset)
	if len(changed) == 0 && outputsOK {
		log.Info("no changes, reusing cached parquet", "dataset", dataset, "mode", "single")
		if err := cachestore.Save(cfg.CacheRoot, next); err != nil {
			return result, err
		}
		return result, nil
	}
	if len(changed) == 0 && !outputsOK {
		log.Warn("cache says no changes but output is missing, forcing rebuild", "dataset", dataset, "mode", "single")
		changed = stamps
	}

	oldName := cachestore.ReadCurrentPointer(cfg.CacheRoot, dataset)

	st := stamps[0]
	newName := buildParquetName(plan.Files[0], st.MtimeUnixMs, cfg.now())
	newPath := filepath.Join(singleDir, newName)

	threads := cfg.DuckDBThreads
	if threads == 0 {
		threads = autotune.Single(cfg.Hw)
	}

	err := cfg.extract()(ctx, extractor.Options{
		ExcelPath:     plan.Files[0],
		ParquetPath:   newPath,
		EngineThreads: threads,
		Transform:     tr,
	})
	if err != nil {
		result.Failures = append(result.Failures, FileResult{Path: plan.Files[0], Err: err})
		log.Error("extraction failed", "dataset", dataset, "mode", "single", "path", plan.Files[0], "error", err)
		return result, nil
	}

	log.Info("wrote parquet", "dataset", dataset, "mode", "single", "path", newPath, "size", humanize.Bytes(uint64(st.Size)))
	result.Success++

	if oldName != "" && oldName != newName {
		oldPath := filepath.Join(singleDir, oldName)
		if rmErr := os.Remove(oldPath); rmErr == nil {
			log.Info("removed superseded parquet", "dataset", dataset, "path", oldPath)
		}
	}

	if err := cachestore.WriteCurrentPointer(cfg.CacheRoot, dataset, newName); err != nil {
		return result, err
	}
	if err := cachestore.Save(cfg.CacheRoot, next); err != nil {
		return result, err
	}
	return result, nil
}

///////////////////////////////////////////////////////////////////////////////
// Multi mode

func runMulti(ctx context.Context, cfg Config, dataset string, stamps []xlparq.FileStamp, prev *xlparq.CacheMeta, tr *transform.Transform) (RunResult, error) {
	result := RunResult{Dataset: dataset, Mode: xlparq.Multi}
	log := cfg.logger()

	dailyDir := cachestore.DailyDir(cfg.CacheRoot, dataset)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return result, fmt.Errorf("mkdir %s: %w", dailyDir, err)
	}
	mapPath := cachestore.ParquetMapPath(cfg.CacheRoot, dataset)

	m := cachestore.LoadParquetMap(mapPath)
	for _, deletedPath := range cachestore.Deleted(prev, stamps) {
		if name, ok := m[deletedPath]; ok {
			delete(m, deletedPath)
			p := filepath.Join(dailyDir, name)
			if rmErr := os.Remove(p); rmErr == nil {
				log.Info("removed parquet for deleted input", "dataset", dataset, "path", p)
			}
		}
	}
	if err := cachestore.SaveParquetMap(mapPath, m); err != nil {
		return result, err
	}

	next, changed := cachestore.Diff(prev, dataset, xlparq.Multi, stamps)

	if len(changed) == 0 {
		if !cachestore.MultiOutputsOK(cfg.CacheRoot, dataset, stamps) {
			log.Warn("cache says no changes but outputs are missing, forcing rebuild", "dataset", dataset, "mode", "multi")
			changed = stamps
		} else {
			log.Info("no changes, reusing cached parquet", "dataset", dataset, "mode", "multi")
			if err := cachestore.Save(cfg.CacheRoot, next); err != nil {
				return result, err
			}
			return result, nil
		}
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i].Size > changed[j].Size })

	sizesDesc := make([]int64, len(changed))
	for i, st := range changed {
		sizesDesc[i] = st.Size
	}
	heavyFirst := autotune.HeavyFirst(sizesDesc)

	tuned := autotune.Multi(cfg.Hw, len(changed))
	workers := cfg.Workers
	if workers == 0 {
		workers = tuned.Workers
	}
	threads := cfg.DuckDBThreads
	if threads == 0 {
		threads = tuned.ThreadsPerJob
	}

	log.Info("auto-tune decision", "dataset", dataset, "mode", "multi",
		"files", len(changed), "workers", workers, "threads_per_job", threads, "heavy_first", heavyFirst)

	remaining := changed
	if heavyFirst {
		heavy := changed[0]
		heavyThreads := cfg.DuckDBThreads
		if heavyThreads == 0 {
			heavyThreads = autotune.Single(cfg.Hw)
		}

		name := buildParquetName(heavy.Path, heavy.MtimeUnixMs, cfg.now())
		outPath := filepath.Join(dailyDir, name)
		log.Info("phase A: heavy alone", "dataset", dataset, "path", heavy.Path, "size", humanize.Bytes(uint64(heavy.Size)), "threads", heavyThreads)

		err := cfg.extract()(ctx, extractor.Options{
			ExcelPath:     heavy.Path,
			ParquetPath:   outPath,
			EngineThreads: heavyThreads,
			Transform:     tr,
		})
		if err != nil {
			result.Failures = append(result.Failures, FileResult{Path: heavy.Path, Err: err})
			log.Error("extraction failed", "dataset", dataset, "mode", "multi", "path", heavy.Path, "error", err)
		} else {
			m[heavy.Path] = name
			result.Success++
			log.Info("wrote parquet", "dataset", dataset, "path", outPath, "day", dayFromFilename(heavy.Path))
		}
		remaining = changed[1:]
	}

	if len(remaining) > 0 {
		poolSize := workers
		if poolSize > len(remaining) {
			poolSize = len(remaining)
		}
		if poolSize < 1 {
			poolSize = 1
		}

		type phaseBResult struct {
			path string
			name string
			err  error
		}
		jobs := make(chan xlparq.FileStamp)
		results := make(chan phaseBResult, len(remaining))

		var wg sync.WaitGroup
		for i := 0; i < poolSize; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for st := range jobs {
					name := buildParquetName(st.Path, st.MtimeUnixMs, cfg.now())
					outPath := filepath.Join(dailyDir, name)
					err := cfg.extract()(ctx, extractor.Options{
						ExcelPath:     st.Path,
						ParquetPath:   outPath,
						EngineThreads: threads,
						Transform:     tr,
					})
					results <- phaseBResult{path: st.Path, name: name, err: err}
				}
			}()
		}
		go func() {
			for _, st := range remaining {
				jobs <- st
			}
			close(jobs)
		}()
		go func() {
			wg.Wait()
			close(results)
		}()

		for r := range results {
			if r.err != nil {
				result.Failures = append(result.Failures, FileResult{Path: r.path, Err: r.err})
				log.Error("extraction failed", "dataset", dataset, "mode", "multi", "path", r.path, "error", r.err)
				continue
			}
			m[r.path] = r.name
			result.Success++
			log.Info("wrote parquet", "dataset", dataset, "path", filepath.Join(dailyDir, r.name), "day", dayFromFilename(r.path))
		}
	}

	if err := cachestore.SaveParquetMap(mapPath, m); err != nil {
		return result, err
	}
	if result.Success > 0 || !result.Failed() {
		// Failed inputs stay out of the manifest so the next run sees them
		// as changed and retries only those.
		for _, f := range result.Failures {
			delete(next.Stamps, f.Path)
		}
		if err := cachestore.Save(cfg.CacheRoot, next); err != nil {
			return result, err
		}
	}

	return result, nil
}
