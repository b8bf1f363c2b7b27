package model

import "time"

// Order is one simulated fill. Orders are append-only: every accepted
// order is immediately FILLED in full and never mutated afterwards.
// Pnl is derived on read by the valuation engine, not authoritative here.
type Order struct {
	OrderID    string    `json:"orderId"`
	Symbol     string    `json:"symbol"`
	Strike     int       `json:"strike,omitempty"`
	Type       string    `json:"type"` // CE, PE or INDEX
	Expiry     time.Time `json:"expiry,omitempty"`
	Side       string    `json:"side"` // BUY or SELL
	Quantity   int       `json:"quantity"`
	OrderType  string    `json:"orderType"` // MARKET or LIMIT
	LimitPrice float64   `json:"limitPrice,omitempty"`
	EntryPrice float64   `json:"entryPrice"`
	LotSize    int       `json:"lotSize"`
	TotalValue float64   `json:"totalValue"`
	Pnl        float64   `json:"pnl"`
	Status     string    `json:"status"`
	SessionID  string    `json:"sessionId"`
	OrderTime  time.Time `json:"orderTime"`
	FillTime   time.Time `json:"fillTime"`
}

// Instrument returns the instrument identity of the order.
func (o *Order) Instrument() Instrument {
	return Instrument{Symbol: o.Symbol, Strike: o.Strike, Type: o.Type, Expiry: o.Expiry}
}
