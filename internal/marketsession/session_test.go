package marketsession

import (
	"testing"
	"time"
)

func at(day string, hour, min int) time.Time {
	d, err := time.ParseInLocation("2006-01-02", day, IST)
	if err != nil {
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, IST)
}

func TestPhaseAt_Weekday(t *testing.T) {
	clock := NewClock(time.Tuesday)

	// Wednesday 2026-09-02, a regular trading day.
	cases := []struct {
		hour, min int
		want      Phase
	}{
		{8, 59, PhaseClosed},
		{9, 0, PhasePreMarket},
		{9, 14, PhasePreMarket},
		{9, 15, PhaseOpen},
		{12, 0, PhaseOpen},
		{15, 30, PhaseOpen}, // close minute is inclusive
		{15, 31, PhasePostMarket},
		{16, 0, PhasePostMarket},
		{16, 1, PhaseClosed},
	}
	for _, tc := range cases {
		got := clock.PhaseAt(at("2026-09-02", tc.hour, tc.min))
		if got != tc.want {
			t.Errorf("PhaseAt(%02d:%02d) = %s, want %s", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestPhaseAt_Weekend(t *testing.T) {
	clock := NewClock(time.Tuesday)
	for _, hm := range [][2]int{{9, 30}, {12, 0}, {15, 0}} {
		if got := clock.PhaseAt(at("2026-09-12", hm[0], hm[1])); got != PhaseClosed {
			t.Errorf("Saturday %02d:%02d = %s, want CLOSED", hm[0], hm[1], got)
		}
	}
}

func TestPhaseAt_Holiday(t *testing.T) {
	clock := NewClock(time.Tuesday)
	// 2026-10-02 is Gandhi Jayanti, a Friday.
	if got := clock.PhaseAt(at("2026-10-02", 11, 0)); got != PhaseClosed {
		t.Errorf("holiday phase = %s, want CLOSED", got)
	}
}

func TestExpiryWindowAt(t *testing.T) {
	clock := NewClock(time.Tuesday)

	// Tuesday 2026-09-01 is an expiry day.
	cases := []struct {
		day       string
		hour, min int
		want      ExpiryWindow
	}{
		{"2026-09-01", 10, 0, WindowNone},
		{"2026-09-01", 13, 59, WindowNone},
		{"2026-09-01", 14, 0, WindowPreExpiry},
		{"2026-09-01", 14, 59, WindowPreExpiry},
		{"2026-09-01", 15, 0, WindowExpirySession},
		{"2026-09-01", 16, 0, WindowExpirySession},
		{"2026-09-01", 16, 1, WindowNone},
		{"2026-09-02", 14, 30, WindowNone}, // Wednesday: not expiry day
	}
	for _, tc := range cases {
		got := clock.ExpiryWindowAt(at(tc.day, tc.hour, tc.min))
		if got != tc.want {
			t.Errorf("ExpiryWindowAt(%s %02d:%02d) = %s, want %s", tc.day, tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	// Friday evening rolls to Monday 09:15.
	next := NextOpen(at("2026-09-04", 18, 0))
	if next.Weekday() != time.Monday || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("NextOpen(Friday 18:00) = %v", next)
	}
	// Before the open on a trading day stays on the same day.
	next = NextOpen(at("2026-09-02", 8, 0))
	if next.Day() != 2 || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("NextOpen(Wednesday 08:00) = %v", next)
	}
}

func TestNextExpiry(t *testing.T) {
	clock := NewClock(time.Tuesday)

	// Mid-week rolls to next Tuesday.
	e := clock.NextExpiry(at("2026-09-02", 12, 0))
	if e.Format("2006-01-02") != "2026-09-08" {
		t.Errorf("NextExpiry(Wed) = %s, want 2026-09-08", e.Format("2006-01-02"))
	}
	// On expiry day before close: the same day.
	e = clock.NextExpiry(at("2026-09-01", 10, 0))
	if e.Format("2006-01-02") != "2026-09-01" {
		t.Errorf("NextExpiry(Tue 10:00) = %s, want 2026-09-01", e.Format("2006-01-02"))
	}
	// On expiry day after close: next week.
	e = clock.NextExpiry(at("2026-09-01", 16, 0))
	if e.Format("2006-01-02") != "2026-09-08" {
		t.Errorf("NextExpiry(Tue 16:00) = %s, want 2026-09-08", e.Format("2006-01-02"))
	}
}

func TestSchedule(t *testing.T) {
	clock := NewClock(time.Tuesday)
	now := at("2026-09-02", 12, 0)
	sched := clock.Schedule(2026, time.September, now)

	// September 2026 Tuesdays: 1, 8, 15, 22, 29.
	if len(sched) != 5 {
		t.Fatalf("expected 5 expiries, got %d", len(sched))
	}
	if !sched[0].IsExpired {
		t.Errorf("2026-09-01 should be expired relative to 09-02")
	}
	if sched[1].Date != "2026-09-08" || sched[1].IsExpired {
		t.Errorf("unexpected second expiry: %+v", sched[1])
	}
	if sched[1].DaysToExpiry != 6 {
		t.Errorf("daysToExpiry = %d, want 6", sched[1].DaysToExpiry)
	}
}
