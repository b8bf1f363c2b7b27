// Package greeks estimates Black-Scholes option sensitivities for
// NIFTY option positions. The normal CDF is built on the rational
// erf approximation from Abramowitz & Stegun 7.1.26 (max abs error
// ~1.5e-7), which keeps the estimator self-contained and matches the
// precision the rest of the system rounds to anyway.
package greeks

import (
	"math"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// Default pricing constants used when the caller does not supply
// market-implied values.
const (
	DefaultVolatility   = 0.20
	DefaultRiskFreeRate = 0.06
)

// Greeks holds the five first-order sensitivities of an option
// position. Delta and gamma are rounded to 4 decimals, theta, vega and
// rho to 2.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Compute estimates the Greeks of an option position at the given spot
// price. Non-option positions, or positions missing a strike, expiry
// or current price, yield all zeros.
//
// Expired options (timeToExpiry <= 0) collapse to boundary values:
// delta 1 for an in-the-money call, -1 for an in-the-money put, 0
// otherwise; every other sensitivity is 0.
func Compute(pos *model.Position, spot, volatility, riskFreeRate float64, now time.Time) Greeks {
	if pos == nil || pos.Strike == 0 || pos.Expiry.IsZero() || pos.CurrentPrice == 0 {
		return Greeks{}
	}
	if pos.Type != model.TypeCall && pos.Type != model.TypePut {
		return Greeks{}
	}

	strike := float64(pos.Strike)
	T := pos.Expiry.Sub(now).Hours() / 24 / 365

	if T <= 0 {
		var delta float64
		if pos.Type == model.TypeCall && spot > strike {
			delta = 1
		} else if pos.Type == model.TypePut && spot < strike {
			delta = -1
		}
		return Greeks{Delta: delta}
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*volatility*volatility)*T) / (volatility * sqrtT)
	d2 := d1 - volatility*sqrtT
	discount := math.Exp(-riskFreeRate * T)

	var delta, theta, rho float64
	if pos.Type == model.TypeCall {
		delta = normCDF(d1)
		theta = -(spot*normPDF(d1)*volatility)/(2*sqrtT) - riskFreeRate*strike*discount*normCDF(d2)
		rho = strike * T * discount * normCDF(d2)
	} else {
		delta = normCDF(d1) - 1
		theta = -(spot*normPDF(d1)*volatility)/(2*sqrtT) + riskFreeRate*strike*discount*normCDF(-d2)
		rho = -strike * T * discount * normCDF(-d2)
	}
	gamma := normPDF(d1) / (spot * volatility * sqrtT)
	vega := spot * normPDF(d1) * sqrtT

	return Greeks{
		Delta: round4(delta),
		Gamma: round4(gamma),
		Theta: round2(theta),
		Vega:  round2(vega),
		Rho:   round2(rho),
	}
}

// normCDF is the standard normal cumulative distribution.
func normCDF(x float64) float64 {
	return 0.5 * (1 + erf(x/math.Sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// erf is the Abramowitz & Stegun 7.1.26 rational approximation of the
// error function.
func erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
