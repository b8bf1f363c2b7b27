// Package marketsession derives the discrete NSE market phase from
// wall-clock time in IST, plus expiry-day sub-windows and the weekly
// expiry schedule. Everything here is a pure function of time: no I/O,
// no allocation of network resources, safe to call on every request.
package marketsession

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Phase is the discrete market phase.
type Phase string

const (
	PhaseClosed     Phase = "CLOSED"
	PhasePreMarket  Phase = "PRE_MARKET"
	PhaseOpen       Phase = "OPEN"
	PhasePostMarket Phase = "POST_MARKET"
)

// ExpiryWindow marks the expiry-day sub-session. Informational only —
// it never blocks trades.
type ExpiryWindow string

const (
	WindowNone          ExpiryWindow = "NONE"
	WindowPreExpiry     ExpiryWindow = "PRE_EXPIRY"
	WindowExpirySession ExpiryWindow = "EXPIRY_SESSION"
)

// Session windows in minutes-from-midnight IST.
const (
	preMarketStart = 9 * 60      // 09:00
	openStart      = 9*60 + 15   // 09:15
	openEnd        = 15*60 + 30  // 15:30, inclusive
	postMarketEnd  = 16 * 60     // 16:00
	preExpiryStart = 14 * 60     // 14:00
	expiryStart    = 15 * 60     // 15:00
)

// Clock derives market phases. The weekly expiry weekday is
// configuration (NIFTY moved from Thursday to Tuesday expiries).
type Clock struct {
	ExpiryWeekday time.Weekday
}

// NewClock returns a Clock with the given weekly expiry weekday.
func NewClock(expiryWeekday time.Weekday) *Clock {
	return &Clock{ExpiryWeekday: expiryWeekday}
}

// PhaseAt returns the market phase at t.
//
// Weekday trading day: CLOSED → PRE_MARKET [09:00,09:15) →
// OPEN [09:15,15:30] → POST_MARKET (15:30,16:00] → CLOSED.
// Weekends and NSE holidays are CLOSED all day.
func (c *Clock) PhaseAt(t time.Time) Phase {
	ist := t.In(IST)
	wd := ist.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return PhaseClosed
	}
	if IsHoliday(ist) {
		return PhaseClosed
	}
	hm := ist.Hour()*60 + ist.Minute()
	switch {
	case hm >= preMarketStart && hm < openStart:
		return PhasePreMarket
	case hm >= openStart && hm <= openEnd:
		return PhaseOpen
	case hm > openEnd && hm <= postMarketEnd:
		return PhasePostMarket
	default:
		return PhaseClosed
	}
}

// IsOpen reports whether the market is in the OPEN phase at t.
func (c *Clock) IsOpen(t time.Time) bool {
	return c.PhaseAt(t) == PhaseOpen
}

// ExpiryWindowAt returns the expiry sub-window at t. Non-expiry days
// always return WindowNone.
func (c *Clock) ExpiryWindowAt(t time.Time) ExpiryWindow {
	ist := t.In(IST)
	if ist.Weekday() != c.ExpiryWeekday || !IsTradingDay(ist) {
		return WindowNone
	}
	hm := ist.Hour()*60 + ist.Minute()
	switch {
	case hm >= preExpiryStart && hm < expiryStart:
		return WindowPreExpiry
	case hm >= expiryStart && hm <= postMarketEnd:
		return WindowExpirySession
	default:
		return WindowNone
	}
}

// IsExpiryDay reports whether t falls on a weekly expiry trading day.
func (c *Clock) IsExpiryDay(t time.Time) bool {
	ist := t.In(IST)
	return ist.Weekday() == c.ExpiryWeekday && IsTradingDay(ist)
}

// IsTradingDay reports whether t is a weekday and not an NSE holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd >= time.Monday && wd <= time.Friday && !IsHoliday(ist)
}

// NextOpen returns the next market open (09:15 IST on the next trading
// day). If t is before today's open on a trading day, today's open.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	todayOpen := time.Date(ist.Year(), ist.Month(), ist.Day(), 9, 15, 0, 0, IST)
	if ist.Before(todayOpen) && IsTradingDay(ist) {
		return todayOpen
	}
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // holidays + weekends never exceed this
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), 9, 15, 0, 0, IST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return todayOpen.AddDate(0, 0, 1)
}

// TodayClose returns today's 15:30 IST close.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 15, 30, 0, 0, IST)
}

// TimeUntilClose returns the duration until today's close, or 0 if the
// close has passed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(IST))
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status line.
func (c *Clock) StatusString(t time.Time) string {
	switch c.PhaseAt(t) {
	case PhaseOpen:
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(TimeUntilClose(t)))
	case PhasePreMarket:
		return "Pre-market session"
	case PhasePostMarket:
		return "Post-market session"
	}
	next := NextOpen(t)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
