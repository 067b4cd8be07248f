// Copyright (c) 2026 Neomantra Corp

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/cachestore"
	"github.com/neomantra/xlparq/internal/extractor"
)

func TestOrchestrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "orchestrator suite")
}

///////////////////////////////////////////////////////////////////////////////
// fixtures

// writeStableFile writes content at <dir>/<name> and backdates its mtime so
// the age-based stability gate (StableSeconds: 1 in baseConfig) accepts it
// without waiting.
func writeStableFile(dir, name string, content []byte) string {
	p := filepath.Join(dir, name)
	Expect(os.WriteFile(p, content, 0644)).To(Succeed())
	old := time.Now().Add(-time.Hour)
	Expect(os.Chtimes(p, old, old)).To(Succeed())
	return p
}

func baseConfig(inputRoot, cacheRoot string, extract ExtractFunc) Config {
	return Config{
		InputRoot:     inputRoot,
		CacheRoot:     cacheRoot,
		ConfigDir:     filepath.Join(GinkgoT().TempDir(), "config"), // never populated: no transform
		StableSeconds: 1,
		Workers:       2,
		DuckDBThreads: 1,
		Hw:            xlparq.HwInfo{LogicalCPUs: 4, TotalRamMB: 16384, DiskKind: xlparq.DiskSsd},
		Extract:       extract,
		Now:           func() time.Time { return time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC) },
	}
}

// fakeExtractWritingStub returns an ExtractFunc that "succeeds" by writing
// arbitrary bytes to ParquetPath (not a real Parquet footer), and records
// every path it was called with.
func fakeExtractWritingStub() (ExtractFunc, *[]string, *sync.Mutex) {
	var mu sync.Mutex
	var calls []string
	fn := func(ctx context.Context, opts extractor.Options) error {
		mu.Lock()
		calls = append(calls, opts.ExcelPath)
		mu.Unlock()
		return os.WriteFile(opts.ParquetPath, []byte("not a real parquet footer"), 0644)
	}
	return fn, &calls, &mu
}

///////////////////////////////////////////////////////////////////////////////
// Single mode

var _ = Describe("Run in Single mode", func() {
	It("extracts once on a cold start and persists a pointer and manifest", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_single")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		writeStableFile(datasetDir, "orders.xlsx", []byte("hello"))

		extract, calls, mu := fakeExtractWritingStub()
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		result, err := Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(Equal(1))
		Expect(result.Failed()).To(BeFalse())

		mu.Lock()
		n := len(*calls)
		mu.Unlock()
		Expect(n).To(Equal(1))

		pointer := cachestore.ReadCurrentPointer(cacheRoot, "orders")
		Expect(pointer).NotTo(BeEmpty())
		Expect(filepath.Join(cachestore.SingleDir(cacheRoot, "orders"), pointer)).To(BeAnExistingFile())

		meta := cachestore.Load(cacheRoot, "orders", xlparq.Single)
		Expect(meta).NotTo(BeNil())
		Expect(meta.Stamps).To(HaveLen(1))
	})

	It("re-extracts when the prior output never verifies, even with no input change", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_single")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		writeStableFile(datasetDir, "orders.xlsx", []byte("hello"))

		extract, calls, mu := fakeExtractWritingStub()
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		_, err := Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())

		// The stub never writes a real Parquet footer, so the output-integrity
		// gate fails and forces a second extraction even though the input
		// hasn't changed — this still exercises the "no changed stamps" branch.
		_, err = Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())

		mu.Lock()
		n := len(*calls)
		mu.Unlock()
		Expect(n).To(Equal(2))
	})

	It("removes the old output once the input is modified", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_single")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		path := writeStableFile(datasetDir, "orders.xlsx", []byte("v1"))

		extract, _, _ := fakeExtractWritingStub()
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		_, err := Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())
		firstPointer := cachestore.ReadCurrentPointer(cacheRoot, "orders")
		firstPath := filepath.Join(cachestore.SingleDir(cacheRoot, "orders"), firstPointer)

		Expect(os.WriteFile(path, []byte("v2, much longer content than before"), 0644)).To(Succeed())
		old := time.Now().Add(-time.Hour)
		os.Chtimes(path, old, old)
		cfg.Now = func() time.Time { return time.Date(2026, 7, 29, 13, 0, 0, 0, time.UTC) }

		_, err = Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())
		secondPointer := cachestore.ReadCurrentPointer(cacheRoot, "orders")
		Expect(secondPointer).NotTo(Equal(firstPointer))
		Expect(firstPath).NotTo(BeAnExistingFile())
	})

	It("reports an extraction failure without corrupting the manifest or writing a pointer", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_single")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		writeStableFile(datasetDir, "orders.xlsx", []byte("hello"))

		failing := func(ctx context.Context, opts extractor.Options) error {
			return fmt.Errorf("boom")
		}
		cfg := baseConfig(inputRoot, cacheRoot, failing)

		result, err := Run(context.Background(), cfg, "orders", xlparq.Single)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(Equal(0))
		Expect(result.Failed()).To(BeTrue())
		Expect(cachestore.ReadCurrentPointer(cacheRoot, "orders")).To(BeEmpty())
		Expect(cachestore.Load(cacheRoot, "orders", xlparq.Single)).To(BeNil())
	})
})

///////////////////////////////////////////////////////////////////////////////
// Multi mode

var _ = Describe("Run in Multi mode", func() {
	It("extracts the heavy file first, serially, before running the rest in parallel", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_multi")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())

		heavy := make([]byte, 31*1024*1024)
		writeStableFile(datasetDir, "a_heavy.xlsx", heavy)
		writeStableFile(datasetDir, "b_small.xlsx", []byte("small1"))
		writeStableFile(datasetDir, "c_small.xlsx", []byte("small2"))

		var heavyFinished int32
		var sawSmallBeforeHeavyDone int32

		extract := func(ctx context.Context, opts extractor.Options) error {
			if filepath.Base(opts.ExcelPath) == "a_heavy.xlsx" {
				err := os.WriteFile(opts.ParquetPath, []byte("stub"), 0644)
				atomic.StoreInt32(&heavyFinished, 1)
				return err
			}
			if atomic.LoadInt32(&heavyFinished) == 0 {
				atomic.StoreInt32(&sawSmallBeforeHeavyDone, 1)
			}
			return os.WriteFile(opts.ParquetPath, []byte("stub"), 0644)
		}
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		result, err := Run(context.Background(), cfg, "orders", xlparq.Multi)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(Equal(3))
		Expect(result.Failed()).To(BeFalse())
		Expect(atomic.LoadInt32(&sawSmallBeforeHeavyDone)).To(Equal(int32(0)), "a small file ran before the heavy file finished; heavy-first was not honored")

		m := cachestore.LoadParquetMap(cachestore.ParquetMapPath(cacheRoot, "orders"))
		Expect(m).To(HaveLen(3))
	})

	It("removes the output for an input that disappears between runs", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_multi")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		keepPath := writeStableFile(datasetDir, "keep.xlsx", []byte("keep"))
		goneAwayPath := writeStableFile(datasetDir, "gone.xlsx", []byte("gone"))

		extract, _, _ := fakeExtractWritingStub()
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		_, err := Run(context.Background(), cfg, "orders", xlparq.Multi)
		Expect(err).NotTo(HaveOccurred())
		m := cachestore.LoadParquetMap(cachestore.ParquetMapPath(cacheRoot, "orders"))
		goneOutput := filepath.Join(cachestore.DailyDir(cacheRoot, "orders"), m[goneAwayPath])
		Expect(goneOutput).To(BeAnExistingFile())

		Expect(os.Remove(goneAwayPath)).To(Succeed())
		_ = keepPath

		_, err = Run(context.Background(), cfg, "orders", xlparq.Multi)
		Expect(err).NotTo(HaveOccurred())

		Expect(goneOutput).NotTo(BeAnExistingFile())
		m2 := cachestore.LoadParquetMap(cachestore.ParquetMapPath(cacheRoot, "orders"))
		Expect(m2).NotTo(HaveKey(goneAwayPath))
	})

	It("persists the successes alongside a partial failure", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()
		datasetDir := filepath.Join(inputRoot, "orders_multi")
		Expect(os.MkdirAll(datasetDir, 0755)).To(Succeed())
		goodPath := writeStableFile(datasetDir, "good.xlsx", []byte("good"))
		writeStableFile(datasetDir, "bad.xlsx", []byte("bad"))

		extract := func(ctx context.Context, opts extractor.Options) error {
			if filepath.Base(opts.ExcelPath) == "bad.xlsx" {
				return fmt.Errorf("simulated extraction failure")
			}
			return os.WriteFile(opts.ParquetPath, []byte("stub"), 0644)
		}
		cfg := baseConfig(inputRoot, cacheRoot, extract)

		result, err := Run(context.Background(), cfg, "orders", xlparq.Multi)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(Equal(1))
		Expect(result.Failures).To(HaveLen(1))

		meta := cachestore.Load(cacheRoot, "orders", xlparq.Multi)
		Expect(meta).NotTo(BeNil())
		Expect(meta.Stamps).To(HaveLen(1))
		Expect(meta.Stamps).To(HaveKey(goodPath))
	})
})
