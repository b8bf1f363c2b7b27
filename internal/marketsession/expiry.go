package marketsession

import "time"

// ExpiryInfo describes one weekly expiry date for the schedule API.
type ExpiryInfo struct {
	Date         string `json:"date"` // YYYY-MM-DD
	DayOfWeek    string `json:"dayOfWeek"`
	IsExpired    bool   `json:"isExpired"`
	IsCurrent    bool   `json:"isCurrent"`
	DaysToExpiry int    `json:"daysToExpiry"`
	Week         int    `json:"week"` // week-of-month, 1-based
}

// NextExpiry returns the next weekly expiry date at or after t (IST
// calendar). If t falls on the expiry weekday before the 15:30 close,
// the same day is returned.
func (c *Clock) NextExpiry(t time.Time) time.Time {
	ist := t.In(IST)
	days := (int(c.ExpiryWeekday) - int(ist.Weekday()) + 7) % 7
	if days == 0 && ist.Hour()*60+ist.Minute() > openEnd {
		days = 7
	}
	d := ist.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IST)
}

// UpcomingExpiries returns the next count weekly expiry dates from t.
func (c *Clock) UpcomingExpiries(t time.Time, count int) []time.Time {
	out := make([]time.Time, 0, count)
	e := c.NextExpiry(t)
	for i := 0; i < count; i++ {
		out = append(out, e)
		e = e.AddDate(0, 0, 7)
	}
	return out
}

// Schedule lists every expiry-weekday date in the given month with
// expired/current flags relative to now.
func (c *Clock) Schedule(year int, month time.Month, now time.Time) []ExpiryInfo {
	nowIST := now.In(IST)
	today := nowIST.Format("2006-01-02")
	var out []ExpiryInfo
	for d := time.Date(year, month, 1, 0, 0, 0, 0, IST); d.Month() == month; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != c.ExpiryWeekday {
			continue
		}
		date := d.Format("2006-01-02")
		days := int(d.Sub(time.Date(nowIST.Year(), nowIST.Month(), nowIST.Day(), 0, 0, 0, 0, IST)).Hours() / 24)
		info := ExpiryInfo{
			Date:      date,
			DayOfWeek: d.Weekday().String(),
			IsExpired: date < today,
			IsCurrent: date == today,
			Week:      (d.Day()-1)/7 + 1,
		}
		if days > 0 {
			info.DaysToExpiry = days
		}
		out = append(out, info)
	}
	return out
}
