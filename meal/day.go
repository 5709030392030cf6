package meal

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar day normalized to midnight (records are keyed by day)
// =============================================================================

// Day is a calendar day. The wall-clock portion is always midnight UTC;
// two Days constructed from different times on the same civil date
// compare equal.
type Day struct {
	Time time.Time
}

// Constructors

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its civil date in t's own location.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// Today returns the current civil date in local time.
func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses an ISO date (YYYY-MM-DD).
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool  { return d.Time.After(other.Time) }
func (d Day) Equal(other Day) bool  { return d.Time.Equal(other.Time) }
func (d Day) IsZero() bool          { return d.Time.IsZero() }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

// Yesterday returns the preceding calendar day.
func (d Day) Yesterday() Day { return d.AddDays(-1) }

func (d Day) String() string { return d.Time.Format("2006-01-02") }
