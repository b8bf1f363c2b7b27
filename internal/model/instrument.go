package model

import (
	"fmt"
	"time"
)

// Instrument type and order field constants.
const (
	TypeIndex = "INDEX"
	TypeCall  = "CE"
	TypePut   = "PE"

	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderMarket = "MARKET"
	OrderLimit  = "LIMIT"

	StatusFilled = "FILLED"
)

// Instrument identifies what is being traded: either the index itself
// (Type == INDEX, Strike and Expiry zero) or a single option leg.
type Instrument struct {
	Symbol string    `json:"symbol"`
	Strike int       `json:"strike,omitempty"`
	Type   string    `json:"type"`
	Expiry time.Time `json:"expiry,omitempty"`
}

// IsOption reports whether the instrument is an option leg.
func (i Instrument) IsOption() bool {
	return i.Type == TypeCall || i.Type == TypePut
}

// Equal reports identity: exact strike and type match, and expiry equal
// as a calendar date. Time-of-day is never compared — expiries are
// date-only values.
func (i Instrument) Equal(o Instrument) bool {
	return i.Symbol == o.Symbol &&
		i.Strike == o.Strike &&
		i.Type == o.Type &&
		SameDate(i.Expiry, o.Expiry)
}

// Key returns a stable map/stream key, e.g. "NIFTY" for the index or
// "NIFTY:25000:CE:2026-09-01" for an option leg.
func (i Instrument) Key() string {
	if !i.IsOption() {
		return i.Symbol
	}
	return fmt.Sprintf("%s:%d:%s:%s", i.Symbol, i.Strike, i.Type, i.Expiry.Format("2006-01-02"))
}

// SameDate reports calendar-day equality. Two zero times are equal
// (the index case, where there is no expiry).
func SameDate(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
