// Package paper is the simulated trading engine: it fills orders
// against live quotes, maintains per-session cash and positions, and
// derives P&L, risk and Greeks on demand. No real orders leave this
// process.
package paper

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/greeks"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/valuation"
)

// OrderFilter narrows an order listing.
type OrderFilter struct {
	SessionID string
	Status    string // optional
	Type      string // optional: CE, PE or INDEX
	Limit     int
	Offset    int
}

// Store persists orders and portfolios.
type Store interface {
	SaveOrder(ctx context.Context, o *model.Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error)
	DeleteOrders(ctx context.Context, sessionID string) (int64, error)
	// GetPortfolio returns (nil, nil) when the session has none yet.
	GetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error)
	SavePortfolio(ctx context.Context, pf *model.Portfolio) error
	ListPortfolios(ctx context.Context) ([]model.Portfolio, error)
}

// QuoteSource provides fill and mark prices.
type QuoteSource interface {
	GetLiveQuote(ctx context.Context) (model.Quote, error)
	GetOption(ctx context.Context, strike int, typ string, expiry time.Time) (model.OptionQuote, error)
}

// Config sets the trading parameters. Zero values take defaults.
type Config struct {
	InitialBalance float64 // default 1,000,000
	LotSize        int     // default 50
	StrikeStep     int     // default 50
	MaxQuantity    int     // default 100 lots
	Volatility     float64 // default 0.20
	RiskFreeRate   float64 // default 0.06
}

func (c *Config) applyDefaults() {
	if c.InitialBalance == 0 {
		c.InitialBalance = 1_000_000
	}
	if c.LotSize == 0 {
		c.LotSize = 50
	}
	if c.StrikeStep == 0 {
		c.StrikeStep = 50
	}
	if c.MaxQuantity == 0 {
		c.MaxQuantity = 100
	}
	if c.Volatility == 0 {
		c.Volatility = greeks.DefaultVolatility
	}
	if c.RiskFreeRate == 0 {
		c.RiskFreeRate = greeks.DefaultRiskFreeRate
	}
}

// Engine is the order and position engine. All mutation of a session's
// portfolio happens under that session's mutex.
type Engine struct {
	store  Store
	quotes QuoteSource
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
	dayBase  map[string]float64 // totalPnl at the last end-of-day reset

	repricing atomic.Bool

	// OnFill, if set, is called synchronously after each accepted order
	// is persisted. Handlers that do I/O should hand off to a goroutine.
	OnFill func(o *model.Order)

	// OnReprice, if set, is called after a sweep saves a session's
	// freshly marked portfolio. Same contract as OnFill.
	OnReprice func(sessionID string, totalPnl float64)
}

// New creates an Engine.
func New(store Store, quotes QuoteSource, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:    store,
		quotes:   quotes,
		cfg:      cfg,
		sessions: make(map[string]*sync.Mutex),
		dayBase:  make(map[string]float64),
	}
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.sessions[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.sessions[sessionID] = l
	}
	return l
}

// OrderRequest is a validated-on-entry order submission.
type OrderRequest struct {
	SessionID  string
	Symbol     string // defaults to NIFTY
	Strike     int
	Type       string // CE, PE or INDEX
	Expiry     time.Time
	Side       string // BUY or SELL
	Quantity   int    // lots
	OrderType  string // MARKET (default) or LIMIT
	LimitPrice float64
}

func (e *Engine) validate(req *OrderRequest) error {
	if req.SessionID == "" || len(req.SessionID) > 50 {
		return &ValidationError{Field: "sessionId", Reason: "must be 1-50 characters"}
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if req.Quantity < 1 || req.Quantity > e.cfg.MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be between 1 and %d lots", e.cfg.MaxQuantity)}
	}
	if req.Symbol == "" {
		req.Symbol = "NIFTY"
	}
	if req.OrderType == "" {
		req.OrderType = model.OrderMarket
	}
	switch req.OrderType {
	case model.OrderMarket:
	case model.OrderLimit:
		if req.LimitPrice <= 0 {
			return &ValidationError{Field: "limitPrice", Reason: "required for LIMIT orders"}
		}
	default:
		return &ValidationError{Field: "orderType", Reason: "must be MARKET or LIMIT"}
	}
	switch req.Type {
	case model.TypeIndex:
	case model.TypeCall, model.TypePut:
		if req.Strike <= 0 || req.Strike%e.cfg.StrikeStep != 0 {
			return &ValidationError{Field: "strike", Reason: fmt.Sprintf("must be a positive multiple of %d", e.cfg.StrikeStep)}
		}
		if req.Expiry.IsZero() {
			return &ValidationError{Field: "expiry", Reason: "required for options"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be CE, PE or INDEX"}
	}
	return nil
}

// fillPrice resolves the entry price: the limit price for LIMIT orders
// (fills are immediate and unconditional in simulation), the live LTP
// otherwise.
func (e *Engine) fillPrice(ctx context.Context, req *OrderRequest) (float64, error) {
	if req.OrderType == model.OrderLimit {
		return req.LimitPrice, nil
	}
	inst := model.Instrument{Symbol: req.Symbol, Strike: req.Strike, Type: req.Type, Expiry: req.Expiry}
	var (
		ltp float64
		err error
	)
	if inst.IsOption() {
		var oq model.OptionQuote
		oq, err = e.quotes.GetOption(ctx, req.Strike, req.Type, req.Expiry)
		ltp = oq.LTP
	} else {
		var q model.Quote
		q, err = e.quotes.GetLiveQuote(ctx)
		ltp = q.LTP
	}
	if err != nil {
		return 0, &QuoteUnavailableError{Instrument: inst.Key(), Err: err}
	}
	if ltp <= 0 {
		return 0, &QuoteUnavailableError{Instrument: inst.Key(), Err: fmt.Errorf("zero last price")}
	}
	return ltp, nil
}

// PlaceOrder validates, prices and fills one simulated order. Every
// accepted order fills in full immediately; a rejected order leaves the
// portfolio untouched.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (*model.Order, error) {
	if err := e.validate(&req); err != nil {
		return nil, err
	}

	lock := e.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	pf, err := e.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	price, err := e.fillPrice(ctx, &req)
	if err != nil {
		return nil, err
	}

	totalValue := price * float64(req.Quantity) * float64(e.cfg.LotSize)
	if req.Side == model.SideBuy && pf.Balance < totalValue {
		return nil, &InsufficientBalanceError{Available: pf.Balance, Required: totalValue}
	}

	now := time.Now().UTC()
	order := &model.Order{
		OrderID:    newOrderID(),
		Symbol:     req.Symbol,
		Strike:     req.Strike,
		Type:       req.Type,
		Expiry:     req.Expiry,
		Side:       req.Side,
		Quantity:   req.Quantity,
		OrderType:  req.OrderType,
		LimitPrice: req.LimitPrice,
		EntryPrice: price,
		LotSize:    e.cfg.LotSize,
		TotalValue: totalValue,
		Status:     model.StatusFilled,
		SessionID:  req.SessionID,
		OrderTime:  now,
		FillTime:   now,
	}

	e.applyFill(pf, order)
	pf.LastUpdated = now

	if err := e.store.SavePortfolio(ctx, pf); err != nil {
		return nil, fmt.Errorf("save portfolio: %w", err)
	}
	if err := e.store.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	log.Printf("[paper] %s %s %d lot(s) %s @ %.2f session=%s", order.Side, order.OrderType,
		order.Quantity, order.Instrument().Key(), order.EntryPrice, order.SessionID)
	if e.OnFill != nil {
		e.OnFill(order)
	}
	return order, nil
}

// applyFill runs the position transition and the cash flow. Cash moves
// unconditionally: balance falls by totalValue on BUY, rises on SELL.
func (e *Engine) applyFill(pf *model.Portfolio, o *model.Order) {
	signedQty := o.Quantity
	if o.Side == model.SideSell {
		signedQty = -o.Quantity
		pf.Balance += o.TotalValue
	} else {
		pf.Balance -= o.TotalValue
	}

	inst := o.Instrument()
	idx := pf.FindPosition(inst)
	if idx < 0 {
		// First fill for this instrument. A SELL opens a short with
		// negative quantity; the math below is symmetric from there.
		pf.Positions = append(pf.Positions, model.Position{
			OrderID:      o.OrderID,
			Symbol:       inst.Symbol,
			Strike:       inst.Strike,
			Type:         inst.Type,
			Expiry:       inst.Expiry,
			Quantity:     signedQty,
			AvgPrice:     o.EntryPrice,
			CurrentPrice: o.EntryPrice,
		})
		return
	}

	pos := &pf.Positions[idx]
	newQty := pos.Quantity + signedQty
	if newQty == 0 {
		pf.Positions = append(pf.Positions[:idx], pf.Positions[idx+1:]...)
		return
	}

	// Volume-weighted re-base on every resizing fill, long or short.
	pos.AvgPrice = (pos.AvgPrice*float64(pos.Quantity) + o.EntryPrice*float64(signedQty)) / float64(newQty)
	pos.Quantity = newQty
	pos.CurrentPrice = o.EntryPrice
	pnl := valuation.PriceOne(pos, pos.CurrentPrice, e.cfg.LotSize)
	pos.Pnl, pos.PnlPercent = pnl.Pnl, pnl.PnlPercent
}

func (e *Engine) loadOrCreate(ctx context.Context, sessionID string) (*model.Portfolio, error) {
	pf, err := e.store.GetPortfolio(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	if pf == nil {
		pf = &model.Portfolio{
			SessionID:   sessionID,
			Balance:     e.cfg.InitialBalance,
			LastUpdated: time.Now().UTC(),
		}
		if err := e.store.SavePortfolio(ctx, pf); err != nil {
			return nil, fmt.Errorf("create portfolio: %w", err)
		}
		log.Printf("[paper] new session %s with balance %.0f", sessionID, pf.Balance)
	}
	return pf, nil
}

// GetPortfolio returns the session portfolio, creating it on first
// access and repricing every open position as a side effect.
func (e *Engine) GetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error) {
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
	return pf, nil
}

// repriceLocked marks every position to the latest quote. A failed
// quote leaves that position at its last known price; repricing is
// best-effort and never fails the caller.
func (e *Engine) repriceLocked(ctx context.Context, pf *model.Portfolio) {
	var total float64
	for i := range pf.Positions {
		pos := &pf.Positions[i]
		inst := pos.Instrument()
		if inst.IsOption() {
			if oq, err := e.quotes.GetOption(ctx, pos.Strike, pos.Type, pos.Expiry); err == nil && oq.LTP > 0 {
				pos.CurrentPrice = oq.LTP
			}
		} else {
			if q, err := e.quotes.GetLiveQuote(ctx); err == nil && q.LTP > 0 {
				pos.CurrentPrice = q.LTP
			}
		}
		pnl := valuation.PriceOne(pos, pos.CurrentPrice, e.cfg.LotSize)
		pos.Pnl, pos.PnlPercent = pnl.Pnl, pnl.PnlPercent
		total += pnl.Pnl
	}
	pf.TotalPnl = total
	pf.DayPnl = total - e.dayBaseline(pf.SessionID, total)
	pf.LastUpdated = time.Now().UTC()
}

// dayBaseline returns the session's totalPnl at the last end-of-day
// reset, seeding it with the current total on first sight so a freshly
// observed session starts the day at zero.
func (e *Engine) dayBaseline(sessionID string, total float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if base, ok := e.dayBase[sessionID]; ok {
		return base
	}
	e.dayBase[sessionID] = total
	return total
}

// ListOrders returns the session's order history, newest first.
func (e *Engine) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	if f.SessionID == "" || len(f.SessionID) > 50 {
		return nil, &ValidationError{Field: "sessionId", Reason: "must be 1-50 characters"}
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return e.store.ListOrders(ctx, f)
}

// ResetPortfolio deletes the session's orders and restores the initial
// balance.
func (e *Engine) ResetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error) {
	if sessionID == "" || len(sessionID) > 50 {
		return nil, &ValidationError{Field: "sessionId", Reason: "must be 1-50 characters"}
	}
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := e.store.DeleteOrders(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("delete orders: %w", err)
	}
	pf := &model.Portfolio{
		SessionID:   sessionID,
		Balance:     e.cfg.InitialBalance,
		LastUpdated: time.Now().UTC(),
	}
	if err := e.store.SavePortfolio(ctx, pf); err != nil {
		return nil, fmt.Errorf("reset portfolio: %w", err)
	}
	e.mu.Lock()
	delete(e.dayBase, sessionID)
	e.mu.Unlock()
	log.Printf("[paper] session %s reset, %d order(s) removed", sessionID, deleted)
	return pf, nil
}

// RepriceAll marks every session's positions to the latest quotes.
// Overlapping sweeps are skipped rather than queued.
func (e *Engine) RepriceAll(ctx context.Context) error {
	if !e.repricing.CompareAndSwap(false, true) {
		log.Printf("[paper] reprice sweep still running, skipping")
		return nil
	}
	defer e.repricing.Store(false)

	portfolios, err := e.store.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	for i := range portfolios {
		pf := &portfolios[i]
		if len(pf.Positions) == 0 {
			continue
		}
		lock := e.sessionLock(pf.SessionID)
		lock.Lock()
		e.repriceLocked(ctx, pf)
		err := e.store.SavePortfolio(ctx, pf)
		lock.Unlock()
		if err != nil {
			log.Printf("[paper] reprice save failed for %s: %v", pf.SessionID, err)
			continue
		}
		if e.OnReprice != nil {
			e.OnReprice(pf.SessionID, pf.TotalPnl)
		}
	}
	return nil
}

// ResetDayPnl zeroes the day P&L on every portfolio. Runs at end-of-day.
func (e *Engine) ResetDayPnl(ctx context.Context) error {
	portfolios, err := e.store.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	for i := range portfolios {
		pf := &portfolios[i]
		lock := e.sessionLock(pf.SessionID)
		lock.Lock()
		pf.DayPnl = 0
		pf.LastUpdated = time.Now().UTC()
		e.mu.Lock()
		e.dayBase[pf.SessionID] = pf.TotalPnl
		e.mu.Unlock()
		err := e.store.SavePortfolio(ctx, pf)
		lock.Unlock()
		if err != nil {
			return fmt.Errorf("save portfolio %s: %w", pf.SessionID, err)
		}
	}
	return nil
}

func newOrderID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
	}
	return "ORD-" + hex.EncodeToString(b[:])
}
