package paper

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/greeks"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/risk"
	"github.com/RNSsanjay/Nefty-Trade/internal/valuation"
)

// PositionDetail is a position with its optional Greeks.
type PositionDetail struct {
	model.Position
	Greeks *greeks.Greeks `json:"greeks,omitempty"`
}

// SessionStats counts the session's order activity.
type SessionStats struct {
	TotalOrders int     `json:"totalOrders"`
	BuyOrders   int     `json:"buyOrders"`
	SellOrders  int     `json:"sellOrders"`
	Turnover    float64 `json:"turnover"`
}

// Performance holds per-order P&L statistics for the session.
type Performance struct {
	SharpeRatio  float64 `json:"sharpeRatio"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	ProfitFactor float64 `json:"profitFactor"`
	WinRate      float64 `json:"winRate"`
}

// DetailedPnL is the full P&L report for one session.
type DetailedPnL struct {
	SessionID    string            `json:"sessionId"`
	Balance      float64           `json:"balance"`
	Summary      valuation.Summary `json:"summary"`
	Risk         risk.Metrics      `json:"risk"`
	Positions    []PositionDetail  `json:"positions"`
	SessionStats SessionStats      `json:"sessionStats"`
	Performance  Performance       `json:"performance"`
	Timestamp    time.Time         `json:"timestamp"`
}

// GetDetailedPnL reprices the session and assembles the full report:
// valuation summary, risk metrics, per-position detail (with Greeks
// when requested), order counts and performance statistics.
func (e *Engine) GetDetailedPnL(ctx context.Context, sessionID string, includeGreeks bool) (*DetailedPnL, error) {
	if sessionID == "" || len(sessionID) > 50 {
		return nil, &ValidationError{Field: "sessionId", Reason: "must be 1-50 characters"}
	}
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	pf, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.repriceLocked(ctx, pf)
	if err := e.store.SavePortfolio(ctx, pf); err != nil {
		return nil, fmt.Errorf("save portfolio: %w", err)
	}

	summary := valuation.PricePortfolio(pf.Positions, e.cfg.LotSize)
	riskMetrics := risk.Compute(pf.Positions, pf.Balance+summary.CurrentValue, e.cfg.LotSize)

	// Spot is only needed for Greeks; a failed fetch just omits them.
	var spot float64
	if includeGreeks {
		if q, qerr := e.quotes.GetLiveQuote(ctx); qerr == nil {
			spot = q.LTP
		}
	}

	now := time.Now().UTC()
	details := make([]PositionDetail, len(pf.Positions))
	for i := range pf.Positions {
		details[i] = PositionDetail{Position: pf.Positions[i]}
		if includeGreeks && spot > 0 {
			g := greeks.Compute(&pf.Positions[i], spot, e.cfg.Volatility, e.cfg.RiskFreeRate, now)
			details[i].Greeks = &g
		}
	}

	orders, err := e.store.ListOrders(ctx, OrderFilter{SessionID: sessionID, Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return &DetailedPnL{
		SessionID:    sessionID,
		Balance:      pf.Balance,
		Summary:      summary,
		Risk:         riskMetrics,
		Positions:    details,
		SessionStats: sessionStats(orders),
		Performance:  performance(orders, pf),
		Timestamp:    now,
	}, nil
}

func sessionStats(orders []model.Order) SessionStats {
	var s SessionStats
	s.TotalOrders = len(orders)
	for i := range orders {
		switch orders[i].Side {
		case model.SideBuy:
			s.BuyOrders++
		case model.SideSell:
			s.SellOrders++
		}
		s.Turnover += orders[i].TotalValue
	}
	s.Turnover = math.Round(s.Turnover*100) / 100
	return s
}

// performance marks each order against the instrument's latest known
// price. Orders on closed positions contribute zero; the series is the
// input to the sharpe/drawdown/profit-factor/win-rate statistics.
func performance(orders []model.Order, pf *model.Portfolio) Performance {
	current := make(map[string]float64, len(pf.Positions))
	for i := range pf.Positions {
		pos := &pf.Positions[i]
		current[pos.Instrument().Key()] = pos.CurrentPrice
	}

	series := make([]float64, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		mark, ok := current[o.Instrument().Key()]
		if !ok || mark == 0 {
			continue
		}
		dir := 1.0
		if o.Side == model.SideSell {
			dir = -1
		}
		series = append(series, (mark-o.EntryPrice)*dir*float64(o.Quantity)*float64(o.LotSize))
	}

	return Performance{
		SharpeRatio:  risk.SharpeRatio(series),
		MaxDrawdown:  risk.MaxDrawdown(series),
		ProfitFactor: risk.ProfitFactor(series),
		WinRate:      risk.WinRate(series),
	}
}
