// Copyright (c) 2026 Neomantra Corp

package sweeper

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neomantra/xlparq"
	"github.com/neomantra/xlparq/internal/cachestore"
)

func TestSweeper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "sweeper suite")
}

func mkdirs(paths ...string) {
	for _, p := range paths {
		Expect(os.MkdirAll(p, 0755)).To(Succeed())
	}
}

func touch(path string) {
	Expect(os.WriteFile(path, []byte("{}"), 0644)).To(Succeed())
}

var _ = Describe("Run", func() {
	It("removes an orphaned dataset's cache dir but keeps a live one", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()

		mkdirs(filepath.Join(inputRoot, "orders_single"))
		mkdirs(filepath.Join(cacheRoot, "orders"), filepath.Join(cacheRoot, "vanished"))

		Expect(Run(inputRoot, cacheRoot, nil)).To(Succeed())

		Expect(filepath.Join(cacheRoot, "orders")).To(BeADirectory())
		Expect(filepath.Join(cacheRoot, "vanished")).NotTo(BeAnExistingFile())
	})

	It("removes only the orphaned mode within a surviving dataset", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := GinkgoT().TempDir()

		datasetDir := filepath.Join(cacheRoot, "orders")
		mkdirs(filepath.Join(inputRoot, "orders_single"))
		mkdirs(cachestore.SingleDir(cacheRoot, "orders"), cachestore.MultiDir(cacheRoot, "orders"))
		touch(cachestore.ManifestPath(cacheRoot, "orders", xlparq.Single))
		touch(cachestore.ManifestPath(cacheRoot, "orders", xlparq.Multi))

		Expect(Run(inputRoot, cacheRoot, nil)).To(Succeed())

		Expect(cachestore.ManifestPath(cacheRoot, "orders", xlparq.Single)).To(BeAnExistingFile())
		Expect(cachestore.MultiDir(cacheRoot, "orders")).NotTo(BeADirectory())
		Expect(cachestore.ManifestPath(cacheRoot, "orders", xlparq.Multi)).NotTo(BeAnExistingFile())
		Expect(datasetDir).To(BeADirectory())
	})

	It("treats a missing cache root as a no-op, not an error", func() {
		inputRoot := GinkgoT().TempDir()
		cacheRoot := filepath.Join(GinkgoT().TempDir(), "does-not-exist")

		Expect(Run(inputRoot, cacheRoot, nil)).To(Succeed())
	})

	It("leaves the cache alone when the input root is unreadable", func() {
		inputRoot := filepath.Join(GinkgoT().TempDir(), "does-not-exist")
		cacheRoot := GinkgoT().TempDir()
		mkdirs(filepath.Join(cacheRoot, "orders"))

		Expect(Run(inputRoot, cacheRoot, nil)).To(Succeed())
		Expect(filepath.Join(cacheRoot, "orders")).To(BeADirectory())
	})
})
