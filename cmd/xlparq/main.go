// Copyright (c) 2026 Neomantra Corp

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/cachestore"
	"github.com/neomantra/xlparq/internal/fsscan"
	"github.com/neomantra/xlparq/internal/hw"
	"github.com/neomantra/xlparq/internal/orchestrator"
	"github.com/neomantra/xlparq/internal/sweeper"
)

///////////////////////////////////////////////////////////////////////////////

var (
	verbose       bool
	inputRoot     string
	cacheRoot     string
	stableSeconds int
	workersFlag   int
	threadsFlag   int

	datasetFlag string
	modeFlag    string
)

func requireNoErrorWithExit(err error, code int) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(code)
	}
}

///////////////////////////////////////////////////////////////////////////////

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&inputRoot, "input-root", "", "Root directory of dataset input folders (default: \"input\" next to the executable)")
	rootCmd.PersistentFlags().StringVar(&cacheRoot, "cache-root", "", "Root directory of the cache/output tree (default: \"cache\" next to the executable)")
	rootCmd.PersistentFlags().IntVar(&stableSeconds, "stable-seconds", 0, "Minimum file age in seconds to consider an input stable (0: dual-sample size check)")
	rootCmd.PersistentFlags().IntVar(&workersFlag, "workers", 0, "Override AutoTune's Multi-mode worker count (0: let AutoTune decide)")
	rootCmd.PersistentFlags().IntVar(&threadsFlag, "duckdb-threads", 0, "Override the per-worker engine thread budget (0: let AutoTune decide)")

	rootCmd.AddCommand(listDatasetsCmd)

	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&datasetFlag, "dataset", "", "Dataset base name")
	planCmd.Flags().StringVar(&modeFlag, "mode", "single", "Run mode: single or multi")
	planCmd.MarkFlagRequired("dataset")

	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&datasetFlag, "dataset", "", "Dataset base name")
	extractCmd.Flags().StringVar(&modeFlag, "mode", "single", "Run mode: single or multi")
	extractCmd.MarkFlagRequired("dataset")

	rootCmd.AddCommand(runAllCmd)
}

func main() {
	cobra.OnInitialize()
	err := rootCmd.Execute()
	requireNoErrorWithExit(err, 1)
}

///////////////////////////////////////////////////////////////////////////////

var rootCmd = &cobra.Command{
	Use:   "xlparq",
	Short: "xlparq incrementally extracts spreadsheet datasets into Parquet",
	Long:  "xlparq incrementally extracts spreadsheet datasets into Parquet, reusing prior work when inputs have not changed",
}

///////////////////////////////////////////////////////////////////////////////
// startup housekeeping shared by every subcommand

// resolvedRoots defaults input-root/cache-root to paths relative to the
// executable, creates them if missing, runs the sweeper, and probes
// hardware — the same order the original tool ran at the top of main,
// unconditionally, before any subcommand's real work.
func resolvedRoots(log *slog.Logger) (string, string, xlparq.HwInfo, error) {
	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	in := inputRoot
	if in == "" {
		in = filepath.Join(exeDir, "input")
	}
	out := cacheRoot
	if out == "" {
		out = filepath.Join(exeDir, "cache")
	}

	if err := os.MkdirAll(in, 0755); err != nil {
		return "", "", xlparq.HwInfo{}, fmt.Errorf("mkdir input root %s: %w", in, err)
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return "", "", xlparq.HwInfo{}, fmt.Errorf("mkdir cache root %s: %w", out, err)
	}

	if err := sweeper.Run(in, out, log); err != nil {
		return "", "", xlparq.HwInfo{}, fmt.Errorf("sweeper: %w", err)
	}

	return in, out, hw.Detect(out), nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func orchestratorConfig(in, out string, hwInfo xlparq.HwInfo, log *slog.Logger) orchestrator.Config {
	return orchestrator.Config{
		InputRoot:     in,
		CacheRoot:     out,
		StableSeconds: stableSeconds,
		Workers:       workersFlag,
		DuckDBThreads: threadsFlag,
		Hw:            hwInfo,
		Logger:        log,
	}
}

///////////////////////////////////////////////////////////////////////////////

var listDatasetsCmd = &cobra.Command{
	Use:   "list-datasets",
	Short: "Print discovered dataset base names",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		in, _, _, err := resolvedRoots(log)
		requireNoErrorWithExit(err, 1)

		names, err := fsscan.DiscoverDatasets(in)
		requireNoErrorWithExit(err, 1)

		for _, name := range names {
			fmt.Println(name)
		}
	},
}

///////////////////////////////////////////////////////////////////////////////

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the files and diff for a (dataset, mode) run without mutating the cache",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		in, out, _, err := resolvedRoots(log)
		requireNoErrorWithExit(err, 1)

		mode := xlparq.ParseRunMode(modeFlag)
		plan, err := fsscan.BuildRunPlan(in, datasetFlag, mode, stableSeconds)
		requireNoErrorWithExit(err, 1)

		stamps := make([]xlparq.FileStamp, 0, len(plan.Files))
		for _, f := range plan.Files {
			st, err := fsscan.StatFile(f)
			requireNoErrorWithExit(err, 1)
			stamps = append(stamps, st)
		}
		_, changed := cachestore.Diff(cachestore.Load(out, datasetFlag, mode), datasetFlag, mode, stamps)
		changedSet := make(map[string]bool, len(changed))
		for _, st := range changed {
			changedSet[st.Path] = true
		}

		fmt.Printf("dataset=%s mode=%s files=%d changed=%d\n", datasetFlag, mode.String(), len(plan.Files), len(changed))
		for _, st := range stamps {
			fmt.Printf("  %s  size=%d mtime_unix_ms=%d changed=%t\n", st.Path, st.Size, st.MtimeUnixMs, changedSet[st.Path])
		}
	},
}

///////////////////////////////////////////////////////////////////////////////

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run one (dataset, mode)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		in, out, hwInfo, err := resolvedRoots(log)
		requireNoErrorWithExit(err, 1)

		mode := xlparq.ParseRunMode(modeFlag)
		cfg := orchestratorConfig(in, out, hwInfo, log)

		result, err := orchestrator.Run(context.Background(), cfg, datasetFlag, mode)
		requireNoErrorWithExit(err, 1)

		printSummary([]orchestrator.RunResult{result})
		os.Exit(exitCodeFor([]orchestrator.RunResult{result}))
	},
}

///////////////////////////////////////////////////////////////////////////////

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every discovered (dataset, mode)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		in, out, hwInfo, err := resolvedRoots(log)
		requireNoErrorWithExit(err, 1)

		modes, err := fsscan.DiscoverDatasetModes(in)
		requireNoErrorWithExit(err, 1)

		cfg := orchestratorConfig(in, out, hwInfo, log)

		var results []orchestrator.RunResult
		for dataset, present := range modes {
			for _, mode := range []xlparq.RunMode{xlparq.Single, xlparq.Multi} {
				if !present[mode] {
					continue
				}
				result, err := orchestrator.Run(context.Background(), cfg, dataset, mode)
				if err != nil {
					log.Error("run-all: dataset run failed, continuing", "dataset", dataset, "mode", mode.String(), "error", err)
					result = orchestrator.RunResult{Dataset: dataset, Mode: mode, Failures: []orchestrator.FileResult{{Path: dataset, Err: err}}}
				}
				results = append(results, result)
			}
		}

		printSummary(results)
		os.Exit(exitCodeFor(results))
	},
}

///////////////////////////////////////////////////////////////////////////////

func printSummary(results []orchestrator.RunResult) {
	var success, failed int
	for _, r := range results {
		success += r.Success
		failed += len(r.Failures)
		for _, f := range r.Failures {
			fmt.Printf("FAILED: dataset=%s mode=%s path=%s error=%s\n", r.Dataset, r.Mode.String(), f.Path, f.Err)
		}
	}
	if failed > 0 {
		fmt.Printf("DONE WITH ERRORS: success=%d failed=%d\n", success, failed)
	} else {
		fmt.Printf("DONE: success=%d\n", success)
	}
}

// exitCodeFor implements the 0/1/2 contract: 2 on any extractor failure, 0
// otherwise. A fatal orchestration error (exit 1) is handled separately by
// requireNoErrorWithExit before a RunResult even exists.
func exitCodeFor(results []orchestrator.RunResult) int {
	for _, r := range results {
		if r.Failed() {
			return 2
		}
	}
	return 0
}
