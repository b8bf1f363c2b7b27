package model

import "time"

// Quote is a live index quote as returned by the market data service.
// Prices are in rupees; option premiums are fractional so the whole
// valuation path works in float64 and rounds only at the API boundary.
type Quote struct {
	Symbol        string    `json:"symbol"`
	LTP           float64   `json:"ltp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"` // previous close
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	MarketStatus  string    `json:"marketStatus,omitempty"`
}

// OptionQuote is a single option leg from the NIFTY option chain.
type OptionQuote struct {
	Strike        int       `json:"strike"`
	Type          string    `json:"type"` // CE or PE
	Expiry        time.Time `json:"expiry"`
	LTP           float64   `json:"ltp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	OI            int64     `json:"oi"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	IV            float64   `json:"iv"`
	Timestamp     time.Time `json:"timestamp"`
}

// Candle is one OHLCV bar of historical index data.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Interval  string    `json:"interval"`
	Date      string    `json:"date"` // YYYY-MM-DD
}
