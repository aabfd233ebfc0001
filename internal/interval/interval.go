// Package interval holds the pure time arithmetic that entry validation and
// compliance aggregation share: net duration, half-open overlap checks, and
// splitting a possibly cross-midnight window across local calendar days.
package interval

import "time"

// Date is a calendar day in some local timezone, formatted YYYY-MM-DD. Using
// the string form keeps it usable as a map key and JSON object key.
type Date string

func DateOf(t time.Time) Date {
	return Date(t.Format("2006-01-02"))
}

func (d Date) String() string {
	return string(d)
}

// NetMinutes returns the worked duration minus break, in whole minutes,
// truncated and floored at zero.
func NetMinutes(start, end time.Time, breakMinutes int) int {
	total := int(end.Sub(start).Minutes())
	if net := total - breakMinutes; net > 0 {
		return net
	}
	return 0
}

// Overlaps reports whether the half-open windows [aStart, aEnd) and
// [bStart, bEnd) intersect. Adjacent windows do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// SplitByLocalDay allocates the window's minutes to the local calendar days it
// spans, then subtracts the break entirely from the earliest day. Assigning
// the whole break to the first day rather than splitting it proportionally is
// a known simplification carried from the payroll rules this implements.
func SplitByLocalDay(start, end time.Time, breakMinutes int, loc *time.Location) map[Date]int {
	result := make(map[Date]int)

	startLocal := start.In(loc)
	endLocal := end.In(loc)

	current := startLocal
	for beforeLocalDay(current, endLocal) {
		// Count up to 23:59:59.999 of the current day, inclusive.
		y, m, d := current.Date()
		dayEnd := time.Date(y, m, d, 23, 59, 59, 999000000, loc)
		minutes := int(dayEnd.Sub(current).Minutes()) + 1
		result[DateOf(current)] += minutes
		current = time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}

	if minutes := int(endLocal.Sub(current).Minutes()); minutes > 0 {
		result[DateOf(current)] += minutes
	}

	if breakMinutes > 0 && len(result) > 0 {
		first := earliestDay(result)
		if remaining := result[first] - breakMinutes; remaining > 0 {
			result[first] = remaining
		} else {
			result[first] = 0
		}
	}

	return result
}

func beforeLocalDay(a, b time.Time) bool {
	return DateOf(a) < DateOf(b)
}

func earliestDay(days map[Date]int) Date {
	var first Date
	for d := range days {
		if first == "" || d < first {
			first = d
		}
	}
	return first
}

// SumDays totals a per-day minute map.
func SumDays(days map[Date]int) int {
	total := 0
	for _, m := range days {
		total += m
	}
	return total
}

// MergeDays adds src's per-day minutes into dst.
func MergeDays(dst, src map[Date]int) {
	for d, m := range src {
		dst[d] += m
	}
}
