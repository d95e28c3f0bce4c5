package core

import "time"

// NextDueDate computes the next due date after ref for the given
// interval. UNIQUE has no next date. INSTALLMENTS also returns nil
// here: the installment ladder is laid out eagerly at creation time
// and the terminal installment carries no next date.
//
// DAILY and WEEKLY are reserved kinds with no creation path yet; they
// still return a sensible date so the calculator stays total.
func NextDueDate(interval Interval, ref time.Time) *time.Time {
	var next time.Time
	switch interval {
	case Daily:
		next = ref.AddDate(0, 0, 1)
	case Weekly:
		next = ref.AddDate(0, 0, 7)
	case Monthly:
		next = AddMonthsClamped(ref, 1)
	case Yearly:
		next = addYearsClamped(ref, 1)
	default:
		return nil
	}
	return &next
}

// AddMonthsClamped moves ref forward by n calendar months keeping the
// day of month, clamped to the last day of shorter target months
// (Jan 31 + 1 month = Feb 28/29). time.AddDate alone would normalize
// Feb 31 into March instead.
func AddMonthsClamped(ref time.Time, n int) time.Time {
	year, month, day := ref.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, ref.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// addYearsClamped moves ref forward by n years; Feb 29 clamps to
// Feb 28 when the target year is not a leap year.
func addYearsClamped(ref time.Time, n int) time.Time {
	year, month, day := ref.Date()
	if last := daysIn(year+n, month); day > last {
		day = last
	}
	return time.Date(year+n, month, day,
		ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthsBetween returns the number of whole calendar months from a to
// b, ignoring the day of month. Negative when b precedes a's month.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// YearsBetween returns the number of calendar years from a to b,
// ignoring month and day.
func YearsBetween(a, b time.Time) int {
	return b.Year() - a.Year()
}

// StartOfMonth truncates d to midnight on the first day of its month.
func StartOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
}

// MonthWindow returns the half-open query window [start, end) covering
// the whole month d falls in.
func MonthWindow(d time.Time) (start, end time.Time) {
	start = StartOfMonth(d)
	return start, start.AddDate(0, 1, 0)
}
