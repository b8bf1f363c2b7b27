// Package valuation prices positions against current market quotes.
// Accumulation runs at full float64 precision; rupee outputs are
// rounded to 2 decimals only at the boundary.
package valuation

import (
	"math"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// PnL is the valuation of a single position at a current price.
type PnL struct {
	Pnl        float64 `json:"pnl"`
	PnlPercent float64 `json:"pnlPercent"`
	PnlPoints  float64 `json:"pnlPoints"`
}

// Summary is the portfolio-level aggregate.
type Summary struct {
	TotalPnl            float64 `json:"totalPnl"`
	TotalPnlPercent     float64 `json:"totalPnlPercent"`
	TotalInvested       float64 `json:"totalInvested"`
	CurrentValue        float64 `json:"currentValue"`
	ProfitablePositions int     `json:"profitablePositions"`
	LosingPositions     int     `json:"losingPositions"`
	MaxProfit           float64 `json:"maxProfit"`
	MaxLoss             float64 `json:"maxLoss"`
}

// PriceOne values one position at currentPrice. When avgPrice or
// currentPrice is zero/absent every output is zero — a position with
// no usable price never errors and never divides by zero.
func PriceOne(pos *model.Position, currentPrice float64, lotSize int) PnL {
	if pos == nil || pos.AvgPrice == 0 || currentPrice == 0 {
		return PnL{}
	}
	points := currentPrice - pos.AvgPrice
	return PnL{
		Pnl:        round2(points * float64(pos.Quantity) * float64(lotSize)),
		PnlPercent: round2(points / pos.AvgPrice * 100),
		PnlPoints:  round2(points),
	}
}

// PricePortfolio aggregates valuations across a position set. Each
// position is valued at its CurrentPrice, falling back to AvgPrice
// when no current price is known. Short legs contribute their absolute
// exposure to invested/current value.
func PricePortfolio(positions []model.Position, lotSize int) Summary {
	var s Summary
	for i := range positions {
		pos := &positions[i]
		qty := math.Abs(float64(pos.Quantity)) * float64(lotSize)
		current := pos.CurrentPrice
		if current == 0 {
			current = pos.AvgPrice
		}
		s.TotalInvested += pos.AvgPrice * qty
		s.CurrentValue += current * qty

		pnl := PriceOne(pos, pos.CurrentPrice, lotSize).Pnl
		s.TotalPnl += pnl
		switch {
		case pnl > 0:
			s.ProfitablePositions++
		case pnl < 0:
			s.LosingPositions++
		}
		s.MaxProfit = math.Max(s.MaxProfit, pnl)
		s.MaxLoss = math.Min(s.MaxLoss, pnl)
	}
	if s.TotalInvested > 0 {
		s.TotalPnlPercent = s.TotalPnl / s.TotalInvested * 100
	}
	s.TotalPnl = round2(s.TotalPnl)
	s.TotalPnlPercent = round2(s.TotalPnlPercent)
	s.TotalInvested = round2(s.TotalInvested)
	s.CurrentValue = round2(s.CurrentValue)
	s.MaxProfit = round2(s.MaxProfit)
	s.MaxLoss = round2(s.MaxLoss)
	return s
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
