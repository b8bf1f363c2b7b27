package model

import "time"

// Position is the net position for one (session, instrument) pair.
// Quantity is in lots and signed: positive = net long, negative = net
// short. A fully closed position is removed, never stored at zero.
type Position struct {
	OrderID      string    `json:"orderId"` // order that opened the position
	Symbol       string    `json:"symbol"`
	Strike       int       `json:"strike,omitempty"`
	Type         string    `json:"type"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Quantity     int       `json:"quantity"`
	AvgPrice     float64   `json:"avgPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Pnl          float64   `json:"pnl"`
	PnlPercent   float64   `json:"pnlPercent"`
}

// Instrument returns the instrument identity of the position.
func (p *Position) Instrument() Instrument {
	return Instrument{Symbol: p.Symbol, Strike: p.Strike, Type: p.Type, Expiry: p.Expiry}
}

// Portfolio is the virtual ledger for one session: cash balance plus
// the set of open positions. One Portfolio per sessionId, created
// lazily with the configured starting balance on first access.
type Portfolio struct {
	SessionID   string     `json:"sessionId"`
	Balance     float64    `json:"balance"`
	TotalPnl    float64    `json:"totalPnl"`
	DayPnl      float64    `json:"dayPnl"`
	Positions   []Position `json:"positions"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// FindPosition returns the index of the position matching inst, or -1.
// At most one position per instrument exists in a portfolio.
func (pf *Portfolio) FindPosition(inst Instrument) int {
	for i := range pf.Positions {
		if pf.Positions[i].Instrument().Equal(inst) {
			return i
		}
	}
	return -1
}
