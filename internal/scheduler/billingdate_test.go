package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBillingDateFor(t *testing.T) {
	tests := []struct {
		name       string
		today      time.Time
		billingDay int
		want       time.Time
	}{
		{
			name:       "plain weekday in same month",
			today:      date(2026, time.March, 10),
			billingDay: 16, // Monday
			want:       date(2026, time.March, 16),
		},
		{
			name:       "day 31 clamps to april 30",
			today:      date(2026, time.April, 10),
			billingDay: 31,
			want:       date(2026, time.April, 30),
		},
		{
			name:       "day 30 clamps to february 28",
			today:      date(2026, time.February, 1),
			billingDay: 30,
			want:       date(2026, time.February, 28), // a Saturday, billed as-is
		},
		{
			name:       "past date rolls to next month",
			today:      date(2026, time.March, 20),
			billingDay: 5,
			want:       date(2026, time.April, 4), // Apr 5 2026 is a Sunday
		},
		{
			name:       "december rolls into january",
			today:      date(2026, time.December, 20),
			billingDay: 15,
			want:       date(2027, time.January, 15),
		},
		{
			name:       "sunday shifts back to saturday",
			today:      date(2026, time.March, 1),
			billingDay: 8, // Sunday March 8 2026
			want:       date(2026, time.March, 7),
		},
		{
			name:       "saturday bills as-is",
			today:      date(2026, time.March, 1),
			billingDay: 7, // Saturday
			want:       date(2026, time.March, 7),
		},
		{
			name:       "today itself is the billing date",
			today:      date(2026, time.March, 16),
			billingDay: 16,
			want:       date(2026, time.March, 16),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BillingDateFor(tt.today, tt.billingDay)
			assert.Equal(t, tt.want, got)
		})
	}
}
