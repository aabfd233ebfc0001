package interval_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tverlabs/timekeep/internal/interval"
)

func TestInterval(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Interval Suite")
}

func utc(hour, min int) time.Time {
	return time.Date(2026, 2, 2, hour, min, 0, 0, time.UTC)
}

var _ = Describe("NetMinutes", func() {
	It("subtracts the break from the gross duration", func() {
		// 08:00 to 16:00 with a 30 minute break
		Expect(interval.NetMinutes(utc(8, 0), utc(16, 0), 30)).To(Equal(450))
	})

	It("floors at zero when the break exceeds the window", func() {
		Expect(interval.NetMinutes(utc(8, 0), utc(8, 30), 45)).To(Equal(0))
	})

	It("is monotonically non-increasing in the break", func() {
		prev := interval.NetMinutes(utc(8, 0), utc(16, 0), 0)
		for b := 1; b <= 600; b += 37 {
			cur := interval.NetMinutes(utc(8, 0), utc(16, 0), b)
			Expect(cur).To(BeNumerically("<=", prev))
			Expect(cur).To(BeNumerically(">=", 0))
			prev = cur
		}
	})

	It("truncates partial minutes", func() {
		end := utc(8, 0).Add(90*time.Minute + 45*time.Second)
		Expect(interval.NetMinutes(utc(8, 0), end, 0)).To(Equal(90))
	})
})

var _ = Describe("Overlaps", func() {
	It("detects intersecting windows", func() {
		Expect(interval.Overlaps(utc(8, 0), utc(12, 0), utc(11, 0), utc(15, 0))).To(BeTrue())
		Expect(interval.Overlaps(utc(11, 0), utc(15, 0), utc(8, 0), utc(12, 0))).To(BeTrue())
	})

	It("treats containment as overlap", func() {
		Expect(interval.Overlaps(utc(8, 0), utc(16, 0), utc(10, 0), utc(11, 0))).To(BeTrue())
	})

	It("does not flag adjacent windows", func() {
		Expect(interval.Overlaps(utc(8, 0), utc(12, 0), utc(12, 0), utc(16, 0))).To(BeFalse())
		Expect(interval.Overlaps(utc(12, 0), utc(16, 0), utc(8, 0), utc(12, 0))).To(BeFalse())
	})
})

var _ = Describe("SplitByLocalDay", func() {
	It("returns a single day for an entry inside one local day", func() {
		days := interval.SplitByLocalDay(utc(8, 0), utc(16, 0), 30, time.UTC)
		Expect(days).To(HaveLen(1))
		Expect(days[interval.Date("2026-02-02")]).To(Equal(450))
	})

	It("splits a cross-midnight entry and conserves total minutes", func() {
		start := utc(22, 0)
		end := start.Add(4 * time.Hour) // 22:00 → 02:00 next day
		days := interval.SplitByLocalDay(start, end, 0, time.UTC)
		Expect(days).To(HaveLen(2))
		Expect(days[interval.Date("2026-02-02")]).To(Equal(120))
		Expect(days[interval.Date("2026-02-03")]).To(Equal(120))
		Expect(interval.SumDays(days)).To(Equal(240))
	})

	It("subtracts the break from the earliest day only", func() {
		start := utc(22, 0)
		end := start.Add(4 * time.Hour)
		days := interval.SplitByLocalDay(start, end, 30, time.UTC)
		Expect(days[interval.Date("2026-02-02")]).To(Equal(90))
		Expect(days[interval.Date("2026-02-03")]).To(Equal(120))
	})

	It("floors the earliest day at zero when the break exceeds it", func() {
		start := utc(23, 30)
		end := start.Add(2 * time.Hour)
		days := interval.SplitByLocalDay(start, end, 60, time.UTC)
		Expect(days[interval.Date("2026-02-02")]).To(Equal(0))
		Expect(days[interval.Date("2026-02-03")]).To(Equal(90))
	})

	It("allocates by the tenant's local day, not UTC", func() {
		oslo, err := time.LoadLocation("Europe/Oslo")
		Expect(err).NotTo(HaveOccurred())
		// 23:00 to 01:00 UTC is 00:00 to 02:00 the next day in Oslo (+01:00): one local day.
		start := utc(23, 0)
		end := start.Add(2 * time.Hour)
		days := interval.SplitByLocalDay(start, end, 0, oslo)
		Expect(days).To(HaveLen(1))
		Expect(days[interval.Date("2026-02-03")]).To(Equal(120))
	})
})

var _ = Describe("MergeDays", func() {
	It("accumulates per-day minutes across entries", func() {
		total := map[interval.Date]int{"2026-02-02": 100}
		interval.MergeDays(total, map[interval.Date]int{"2026-02-02": 50, "2026-02-03": 25})
		Expect(total).To(Equal(map[interval.Date]int{"2026-02-02": 150, "2026-02-03": 25}))
	})
})
