// Copyright (c) 2026 Neomantra Corp

package autotune

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neomantra/xlparq"
)

func TestAutotune(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "autotune suite")
}

var _ = Describe("Single", func() {
	DescribeTable("engine thread budget",
		func(hw xlparq.HwInfo, want int) {
			Expect(Single(hw)).To(Equal(want))
		},
		Entry("low ram", xlparq.HwInfo{LogicalCPUs: 8, TotalRamMB: 2048, DiskKind: xlparq.DiskSsd}, 1),
		Entry("mid ram caps at 2", xlparq.HwInfo{LogicalCPUs: 8, TotalRamMB: 6000, DiskKind: xlparq.DiskSsd}, 2),
		Entry("mid ram fewer cores", xlparq.HwInfo{LogicalCPUs: 1, TotalRamMB: 6000, DiskKind: xlparq.DiskSsd}, 1),
		Entry("high ram ssd caps at 4", xlparq.HwInfo{LogicalCPUs: 8, TotalRamMB: 16384, DiskKind: xlparq.DiskSsd}, 4),
		Entry("high ram ssd fewer cores", xlparq.HwInfo{LogicalCPUs: 3, TotalRamMB: 16384, DiskKind: xlparq.DiskSsd}, 3),
		Entry("high ram hdd caps at 2", xlparq.HwInfo{LogicalCPUs: 8, TotalRamMB: 16384, DiskKind: xlparq.DiskHdd}, 2),
		Entry("high ram unknown caps at 2", xlparq.HwInfo{LogicalCPUs: 8, TotalRamMB: 16384, DiskKind: xlparq.DiskUnknown}, 2),
	)
})

var _ = Describe("Multi", func() {
	Context("worker and thread budget", func() {
		It("scenario 3: 4-core 16GB ssd, 3 files falls through to Single's thread budget", func() {
			hw := xlparq.HwInfo{LogicalCPUs: 4, TotalRamMB: 16384, DiskKind: xlparq.DiskSsd}
			got := Multi(hw, 3)
			Expect(got).To(Equal(xlparq.TuneResult{Workers: 2, ThreadsPerJob: 4}))
		})

		It("clamps workers to the file count", func() {
			hw := xlparq.HwInfo{LogicalCPUs: 16, TotalRamMB: 32768, DiskKind: xlparq.DiskSsd}
			got := Multi(hw, 1)
			Expect(got.Workers).To(Equal(1))
		})

		It("caps workers to 1 under low ram", func() {
			hw := xlparq.HwInfo{LogicalCPUs: 16, TotalRamMB: 2048, DiskKind: xlparq.DiskSsd}
			got := Multi(hw, 20)
			Expect(got).To(Equal(xlparq.TuneResult{Workers: 1, ThreadsPerJob: 1}))
		})

		It("drops threads to 1 once workers reach 6 or more", func() {
			hw := xlparq.HwInfo{LogicalCPUs: 16, TotalRamMB: 32768, DiskKind: xlparq.DiskSsd}
			got := Multi(hw, 20)
			Expect(got).To(Equal(xlparq.TuneResult{Workers: 8, ThreadsPerJob: 1}))
		})

		It("uses cores/3 base workers on hdd", func() {
			hw := xlparq.HwInfo{LogicalCPUs: 9, TotalRamMB: 32768, DiskKind: xlparq.DiskHdd}
			got := Multi(hw, 20)
			Expect(got).To(Equal(xlparq.TuneResult{Workers: 3, ThreadsPerJob: 2}))
		})
	})
})

var _ = Describe("HeavyFirst", func() {
	const mb = 1024 * 1024

	DescribeTable("heavy-first decision",
		func(sizes []int64, want bool) {
			Expect(HeavyFirst(sizes)).To(Equal(want))
		},
		Entry("too few files", []int64{50 * mb}, false),
		Entry("large absolute size", []int64{45 * mb, 10 * mb, 8 * mb}, true),
		Entry("relative dominance", []int64{10 * mb, 5 * mb}, true),
		Entry("no dominance", []int64{10 * mb, 9 * mb}, false),
		Entry("second is zero", []int64{1 * mb, 0}, false),
	)
})
