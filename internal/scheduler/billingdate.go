package scheduler

import "time"

// BillingDateFor computes the billing date a device's configured billing
// day resolves to, as seen from today:
//
//  1. Clamp the billing day to the last valid day of today's month
//     (day 31 in a 30-day month bills on the 30th).
//  2. If today is already past that date, roll forward one month with
//     the same clamp, crossing the year boundary in December.
//  3. A billing date landing on a Sunday shifts one day earlier to
//     Saturday. Saturdays bill as-is.
func BillingDateFor(today time.Time, billingDay int) time.Time {
	today = truncateDate(today)

	target := clampedDate(today.Year(), today.Month(), billingDay)
	if today.After(target) {
		year, month := today.Year(), today.Month()
		if month == time.December {
			year, month = year+1, time.January
		} else {
			month++
		}
		target = clampedDate(year, month, billingDay)
	}

	if target.Weekday() == time.Sunday {
		target = target.AddDate(0, 0, -1)
	}
	return target
}

// clampedDate builds a date from year/month/day, pulling the day back to
// the month's last day when it overflows.
func clampedDate(year int, month time.Month, day int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
