package risk

import "math"

// Performance statistics over a chronological series of per-order P&L
// values. These are stateless helpers: the caller supplies the series
// in fill order.

// SharpeRatio returns mean/stddev of the P&L series (population
// stddev), rounded to 2 decimals. Fewer than two samples, or a flat
// series, yields 0.
func SharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return round2(mean / std)
}

// MaxDrawdown returns the largest peak-to-trough fall of the running
// cumulative P&L, rounded to 2 decimals.
func MaxDrawdown(pnls []float64) float64 {
	var peak, running, maxDD float64
	for _, p := range pnls {
		running += p
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDD {
			maxDD = dd
		}
	}
	return round2(maxDD)
}

// ProfitFactor returns gross profit / gross loss, rounded to 2
// decimals; 0 when there are no losing trades.
func ProfitFactor(pnls []float64) float64 {
	var profit, loss float64
	for _, p := range pnls {
		if p > 0 {
			profit += p
		} else {
			loss += -p
		}
	}
	if loss == 0 {
		return 0
	}
	return round2(profit / loss)
}

// WinRate returns the percentage of strictly profitable entries,
// rounded to 2 decimals; 0 for an empty series.
func WinRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	return round2(float64(wins) / float64(len(pnls)) * 100)
}
