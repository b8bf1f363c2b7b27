// Package gateway is the HTTP surface: REST routes for trading and
// market data, the WebSocket push hub, and the metrics/health probes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/paper"
	"github.com/RNSsanjay/Nefty-Trade/internal/upstream"
)

// Engine is the trading engine surface the gateway needs.
type Engine interface {
	PlaceOrder(ctx context.Context, req paper.OrderRequest) (*model.Order, error)
	ListOrders(ctx context.Context, f paper.OrderFilter) ([]model.Order, error)
	GetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error)
	GetDetailedPnL(ctx context.Context, sessionID string, includeGreeks bool) (*paper.DetailedPnL, error)
	ResetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error)
}

// MarketData serves quotes, chains and historical bars.
type MarketData interface {
	GetLiveQuote(ctx context.Context) (model.Quote, error)
	GetOptionChain(ctx context.Context) ([]model.OptionQuote, error)
	GetOption(ctx context.Context, strike int, typ string, expiry time.Time) (model.OptionQuote, error)
	GetHistoricalQuotes(ctx context.Context, date, interval string) ([]model.Candle, error)
}

// HistoryReader reads stored bars; the history endpoint is
// SQLite-first with the upstream as fallback.
type HistoryReader interface {
	ListCandles(ctx context.Context, date, interval string) ([]model.Candle, error)
}

// TapeReader reads recent polled ticks. Optional.
type TapeReader interface {
	RecentTicks(ctx context.Context, n int) ([]model.Quote, error)
}

// Server holds the gateway dependencies.
type Server struct {
	engine  Engine
	md      MarketData
	history HistoryReader
	tape    TapeReader // may be nil
	clock   *marketsession.Clock
	hub     *Hub
	healthz http.Handler // may be nil
	started time.Time
}

// NewServer creates the gateway. tape and healthz may be nil.
func NewServer(engine Engine, md MarketData, history HistoryReader, tape TapeReader,
	clock *marketsession.Clock, hub *Hub, healthz http.Handler) *Server {
	return &Server{
		engine:  engine,
		md:      md,
		history: history,
		tape:    tape,
		clock:   clock,
		hub:     hub,
		healthz: healthz,
		started: time.Now(),
	}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes mounts every route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/papertrade/orders", s.rest(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handlePlaceOrder(w, r)
		case http.MethodGet:
			s.handleListOrders(w, r)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, errBody("method not allowed"))
		}
	}))
	mux.HandleFunc("/api/papertrade/portfolio", s.rest(s.handlePortfolio))
	mux.HandleFunc("/api/papertrade/pnl", s.rest(s.handlePnL))
	mux.HandleFunc("/api/papertrade/reset", s.rest(s.handleReset))

	mux.HandleFunc("/api/nifty/live", s.rest(s.handleNiftyLive))
	mux.HandleFunc("/api/nifty/history", s.rest(s.handleNiftyHistory))
	mux.HandleFunc("/api/nifty/tape", s.rest(s.handleNiftyTape))

	mux.HandleFunc("/api/options/live", s.rest(s.handleOptionLive))
	mux.HandleFunc("/api/options/chain", s.rest(s.handleOptionChain))

	mux.HandleFunc("/api/expiry/schedule", s.rest(s.handleExpirySchedule))
	mux.HandleFunc("/api/status", s.rest(s.handleStatus))

	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.Handle("/metrics", promhttp.Handler())
	if s.healthz != nil {
		mux.Handle("/healthz", s.healthz)
	}
}

// rest wraps a handler with CORS and OPTIONS preflight.
func (s *Server) rest(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h(w, r)
	}
}

type orderRequestBody struct {
	SessionID  string  `json:"sessionId"`
	Symbol     string  `json:"symbol"`
	Strike     int     `json:"strike"`
	Type       string  `json:"type"`
	Expiry     string  `json:"expiry"` // YYYY-MM-DD
	Side       string  `json:"side"`
	Quantity   int     `json:"quantity"`
	OrderType  string  `json:"orderType"`
	LimitPrice float64 `json:"limitPrice"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}

	var expiry time.Time
	if body.Expiry != "" {
		t, err := time.Parse("2006-01-02", body.Expiry)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid expiry: want YYYY-MM-DD"))
			return
		}
		expiry = t
	}

	order, err := s.engine.PlaceOrder(r.Context(), paper.OrderRequest{
		SessionID:  body.SessionID,
		Symbol:     body.Symbol,
		Strike:     body.Strike,
		Type:       body.Type,
		Expiry:     expiry,
		Side:       body.Side,
		Quantity:   body.Quantity,
		OrderType:  body.OrderType,
		LimitPrice: body.LimitPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"order": order})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := paper.OrderFilter{
		SessionID: q.Get("sessionId"),
		Status:    q.Get("status"),
		Type:      q.Get("type"),
		Limit:     intParam(q.Get("limit"), 100),
		Offset:    intParam(q.Get("offset"), 0),
	}
	orders, err := s.engine.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := s.engine.GetPortfolio(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeGreeks := q.Get("includeGreeks") == "true"
	report, err := s.engine.GetDetailedPnL(r.Context(), q.Get("sessionId"), includeGreeks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errBody("method not allowed"))
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		var body struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			sessionID = body.SessionID
		}
	}
	pf, err := s.engine.ResetPortfolio(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "portfolio reset",
		"portfolio": pf,
	})
}

func (s *Server) handleNiftyLive(w http.ResponseWriter, r *http.Request) {
	quote, err := s.md.GetLiveQuote(r.Context())
	if err != nil {
		writeError(w, &paper.QuoteUnavailableError{Instrument: "NIFTY", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleNiftyHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	interval := q.Get("interval")
	if interval == "" {
		interval = "5min"
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid date: want YYYY-MM-DD"))
		return
	}
	if interval != "tick" && !upstream.ValidInterval(interval) {
		writeJSON(w, http.StatusBadRequest, errBody("invalid interval"))
		return
	}

	source := "store"
	candles, err := s.history.ListCandles(r.Context(), date, interval)
	if err != nil {
		log.Printf("[gateway] history read: %v", err)
	}
	if len(candles) == 0 {
		source = "upstream"
		candles, err = s.md.GetHistoricalQuotes(r.Context(), date, interval)
		if err != nil {
			writeError(w, &paper.QuoteUnavailableError{Instrument: "NIFTY history", Err: err})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":     date,
		"interval": interval,
		"source":   source,
		"count":    len(candles),
		"candles":  candles,
	})
}

func (s *Server) handleNiftyTape(w http.ResponseWriter, r *http.Request) {
	if s.tape == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ticks": []model.Quote{}, "count": 0})
		return
	}
	n := intParam(r.URL.Query().Get("limit"), 100)
	ticks, err := s.tape.RecentTicks(r.Context(), n)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("tape unavailable"))
		return
	}
	if ticks == nil {
		ticks = []model.Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticks": ticks, "count": len(ticks)})
}

func (s *Server) handleOptionLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, err := strconv.Atoi(q.Get("strike"))
	if err != nil || strike <= 0 {
		writeJSON(w, http.StatusBadRequest, errBody("invalid strike"))
		return
	}
	typ := q.Get("type")
	if typ != model.TypeCall && typ != model.TypePut {
		writeJSON(w, http.StatusBadRequest, errBody("type must be CE or PE"))
		return
	}
	expiry, err := time.Parse("2006-01-02", q.Get("expiry"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid expiry: want YYYY-MM-DD"))
		return
	}

	leg, err := s.md.GetOption(r.Context(), strike, typ, expiry)
	if err != nil {
		writeError(w, &paper.NotFoundError{Kind: "option", ID: q.Get("strike") + typ})
		return
	}
	writeJSON(w, http.StatusOK, leg)
}

func (s *Server) handleOptionChain(w http.ResponseWriter, r *http.Request) {
	chain, err := s.md.GetOptionChain(r.Context())
	if err != nil {
		writeError(w, &paper.QuoteUnavailableError{Instrument: "option chain", Err: err})
		return
	}

	if expiryStr := r.URL.Query().Get("expiry"); expiryStr != "" {
		expiry, err := time.Parse("2006-01-02", expiryStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid expiry: want YYYY-MM-DD"))
			return
		}
		filtered := make([]model.OptionQuote, 0, len(chain))
		for _, leg := range chain {
			if model.SameDate(leg.Expiry, expiry) {
				filtered = append(filtered, leg)
			}
		}
		chain = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"options": chain, "count": len(chain)})
}

func (s *Server) handleExpirySchedule(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	ist := now.In(marketsession.IST)
	q := r.URL.Query()
	year := intParam(q.Get("year"), ist.Year())
	month := intParam(q.Get("month"), int(ist.Month()))
	if month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, errBody("month must be 1-12"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"year":       year,
		"month":      month,
		"expiryDay":  s.clock.ExpiryWeekday.String(),
		"nextExpiry": s.clock.NextExpiry(now).Format("2006-01-02"),
		"expiries":   s.clock.Schedule(year, time.Month(month), now),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phase":          s.clock.PhaseAt(now),
		"marketStatus":   s.clock.StatusString(now),
		"isOpen":         s.clock.IsOpen(now),
		"expiryWindow":   s.clock.ExpiryWindowAt(now),
		"isExpiryDay":    s.clock.IsExpiryDay(now),
		"nextOpen":       marketsession.NextOpen(now).Format(time.RFC3339),
		"timeUntilClose": marketsession.TimeUntilClose(now).String(),
		"wsClients":      s.hub.ClientCount(),
		"uptimeSec":      int64(time.Since(s.started).Seconds()),
		"ts":             now.UTC().Format(time.RFC3339),
	})
}

// writeError maps engine errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ve *paper.ValidationError
	var ibe *paper.InsufficientBalanceError
	var qe *paper.QuoteUnavailableError
	var nfe *paper.NotFoundError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errBody(ve.Error()))
	case errors.As(err, &ibe):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":     ibe.Error(),
			"available": ibe.Available,
			"required":  ibe.Required,
		})
	case errors.As(err, &qe):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":     qe.Error(),
			"retryable": true,
		})
	case errors.As(err, &nfe):
		writeJSON(w, http.StatusNotFound, errBody(nfe.Error()))
	default:
		log.Printf("[gateway] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
