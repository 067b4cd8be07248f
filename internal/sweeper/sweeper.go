// Copyright (c) 2026 Neomantra Corp

// Package sweeper prunes cache_root of stale state: dataset directories
// whose input directory no longer exists, and single/multi mode state for
// a dataset whose corresponding input mode directory has disappeared.
package sweeper

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/cachestore"
	"github.com/neomantra/xlparq/internal/fsscan"
)

// Run prunes cacheRoot against the datasets and modes currently present
// under inputRoot. It never touches inputRoot. A missing cacheRoot is not
// an error — there is nothing to sweep yet.
func Run(inputRoot, cacheRoot string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(cacheRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	valid, err := fsscan.DiscoverDatasetModes(inputRoot)
	if err != nil {
		// Input root missing or unreadable: leave the cache alone rather
		// than wiping every dataset out from under a misconfigured run.
		log.Warn("sweeper: input root unreadable, skipping cleanup", "error", err)
		return nil
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dataset := e.Name()
		datasetDir := filepath.Join(cacheRoot, dataset)

		modes, known := valid[dataset]
		if !known {
			log.Info("sweeper: removing orphaned dataset cache", "dataset", dataset)
			if err := os.RemoveAll(datasetDir); err != nil {
				return err
			}
			continue
		}

		if !modes[xlparq.Single] {
			removeMode(log, cacheRoot, dataset, xlparq.Single)
		}
		if !modes[xlparq.Multi] {
			removeMode(log, cacheRoot, dataset, xlparq.Multi)
		}
	}
	return nil
}

func removeMode(log *slog.Logger, cacheRoot, dataset string, mode xlparq.RunMode) {
	manifest := cachestore.ManifestPath(cacheRoot, dataset, mode)
	if _, err := os.Stat(manifest); err == nil {
		log.Info("sweeper: removing orphaned mode state", "dataset", dataset, "mode", mode.String())
	}
	os.Remove(manifest)

	var dir string
	if mode == xlparq.Single {
		dir = cachestore.SingleDir(cacheRoot, dataset)
	} else {
		dir = cachestore.MultiDir(cacheRoot, dataset)
	}
	os.RemoveAll(dir)
}
