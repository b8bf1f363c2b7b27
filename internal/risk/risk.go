// Package risk derives portfolio risk metrics from a position set.
package risk

import (
	"fmt"
	"math"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// Risk level buckets.
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// Metrics is the portfolio risk assessment. Ratios are rounded to 2
// decimals.
type Metrics struct {
	TotalExposure        float64 `json:"totalExposure"`
	LeverageRatio        float64 `json:"leverageRatio"`
	ConcentrationRisk    float64 `json:"concentrationRisk"`
	MaxPositionSize      float64 `json:"maxPositionSize"`
	DiversificationScore float64 `json:"diversificationScore"`
	RiskLevel            string  `json:"riskLevel"`
}

// Compute assesses a position set against the total portfolio value.
//
// Exposure per position is |price × qty × lotSize| with avgPrice as
// fallback when no current price is known. Level thresholds are
// strict: leverage of exactly 3.0 is still MEDIUM, 2.0 still LOW.
func Compute(positions []model.Position, portfolioValue float64, lotSize int) Metrics {
	m := Metrics{RiskLevel: LevelLow}
	if len(positions) == 0 {
		return m
	}

	distinct := make(map[string]bool, len(positions))
	for i := range positions {
		pos := &positions[i]
		price := pos.CurrentPrice
		if price == 0 {
			price = pos.AvgPrice
		}
		exposure := math.Abs(price * float64(pos.Quantity) * float64(lotSize))
		m.TotalExposure += exposure
		if exposure > m.MaxPositionSize {
			m.MaxPositionSize = exposure
		}
		distinct[fmt.Sprintf("%d_%s_%s", pos.Strike, pos.Type, pos.Expiry.Format("2006-01-02"))] = true
	}

	if portfolioValue > 0 {
		m.LeverageRatio = m.TotalExposure / portfolioValue
	}
	if m.TotalExposure > 0 {
		m.ConcentrationRisk = m.MaxPositionSize / m.TotalExposure
	}
	m.DiversificationScore = math.Min(float64(len(distinct))/10, 1)

	switch {
	case m.LeverageRatio > 3 || m.ConcentrationRisk > 0.5:
		m.RiskLevel = LevelHigh
	case m.LeverageRatio > 2 || m.ConcentrationRisk > 0.3:
		m.RiskLevel = LevelMedium
	}

	m.TotalExposure = round2(m.TotalExposure)
	m.LeverageRatio = round2(m.LeverageRatio)
	m.ConcentrationRisk = round2(m.ConcentrationRisk)
	m.MaxPositionSize = round2(m.MaxPositionSize)
	m.DiversificationScore = round2(m.DiversificationScore)
	return m
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
