package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

// DateLayout is the day-granularity label used for cache stamps and expiry groups.
const DateLayout = "2006-01-02"

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// DateOf truncates t to midnight of its calendar day in IST.
func DateOf(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IndiaLocation)
}

// Today returns the current trading calendar date (midnight IST).
func Today() time.Time {
	return DateOf(time.Now())
}

// DateLabel formats a date as YYYY-MM-DD in IST.
func DateLabel(t time.Time) string {
	return t.In(IndiaLocation).Format(DateLayout)
}

// ParseDateLabel parses a YYYY-MM-DD label as an IST date.
func ParseDateLabel(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, IndiaLocation)
}

// UntilEndOfDay returns the time left until the next IST midnight.
func UntilEndOfDay(now time.Time) time.Duration {
	return DateOf(now).AddDate(0, 0, 1).Sub(now)
}

// IsMarketOpen reports whether now falls inside the 9:15-15:30 IST weekday session.
func IsMarketOpen(now time.Time) bool {
	now = now.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 555 && minutes < 930
}
