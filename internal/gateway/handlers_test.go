package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/paper"
)

type stubEngine struct {
	placeErr   error
	lastReq    paper.OrderRequest
	lastFilter paper.OrderFilter
	pnlGreeks  bool
}

func (s *stubEngine) PlaceOrder(ctx context.Context, req paper.OrderRequest) (*model.Order, error) {
	s.lastReq = req
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	return &model.Order{
		OrderID:    "ORD-test",
		SessionID:  req.SessionID,
		Strike:     req.Strike,
		Type:       req.Type,
		Side:       req.Side,
		Quantity:   req.Quantity,
		EntryPrice: 100,
		Status:     "FILLED",
	}, nil
}

func (s *stubEngine) ListOrders(ctx context.Context, f paper.OrderFilter) ([]model.Order, error) {
	s.lastFilter = f
	return []model.Order{{OrderID: "ORD-a"}, {OrderID: "ORD-b"}}, nil
}

func (s *stubEngine) GetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error) {
	return &model.Portfolio{SessionID: sessionID, Balance: 1_000_000}, nil
}

func (s *stubEngine) GetDetailedPnL(ctx context.Context, sessionID string, includeGreeks bool) (*paper.DetailedPnL, error) {
	s.pnlGreeks = includeGreeks
	return &paper.DetailedPnL{SessionID: sessionID, Balance: 990_000}, nil
}

func (s *stubEngine) ResetPortfolio(ctx context.Context, sessionID string) (*model.Portfolio, error) {
	return &model.Portfolio{SessionID: sessionID, Balance: 1_000_000}, nil
}

type stubMD struct {
	quoteErr error
	chain    []model.OptionQuote
	hist     []model.Candle
}

func (s *stubMD) GetLiveQuote(ctx context.Context) (model.Quote, error) {
	if s.quoteErr != nil {
		return model.Quote{}, s.quoteErr
	}
	return model.Quote{Symbol: "NIFTY 50", LTP: 24825.8}, nil
}

func (s *stubMD) GetOptionChain(ctx context.Context) ([]model.OptionQuote, error) {
	return s.chain, nil
}

func (s *stubMD) GetOption(ctx context.Context, strike int, typ string, expiry time.Time) (model.OptionQuote, error) {
	for _, leg := range s.chain {
		if leg.Strike == strike && leg.Type == typ && model.SameDate(leg.Expiry, expiry) {
			return leg, nil
		}
	}
	return model.OptionQuote{}, &paper.NotFoundError{Kind: "option", ID: typ}
}

func (s *stubMD) GetHistoricalQuotes(ctx context.Context, date, interval string) ([]model.Candle, error) {
	return s.hist, nil
}

type stubHistory struct {
	candles []model.Candle
}

func (s *stubHistory) ListCandles(ctx context.Context, date, interval string) ([]model.Candle, error) {
	return s.candles, nil
}

type stubTape struct {
	ticks []model.Quote
}

func (s *stubTape) RecentTicks(ctx context.Context, n int) ([]model.Quote, error) {
	return s.ticks, nil
}

func newTestServer(t *testing.T, engine *stubEngine, md *stubMD, history *stubHistory, tape TapeReader) *httptest.Server {
	t.Helper()
	clock := marketsession.NewClock(time.Tuesday)
	srv := NewServer(engine, md, history, tape, clock, NewHub(), nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestPlaceOrder(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(t, engine, &stubMD{}, &stubHistory{}, nil)

	body := `{"sessionId":"s1","strike":25000,"type":"CE","expiry":"2026-09-08","side":"BUY","quantity":2,"orderType":"MARKET"}`
	resp, err := http.Post(ts.URL+"/api/papertrade/orders", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		Order model.Order `json:"order"`
	}
	decode(t, resp, &out)
	if out.Order.OrderID != "ORD-test" || out.Order.Status != "FILLED" {
		t.Errorf("order = %+v", out.Order)
	}
	if engine.lastReq.Expiry.Format("2006-01-02") != "2026-09-08" {
		t.Errorf("expiry not parsed: %v", engine.lastReq.Expiry)
	}
}

func TestPlaceOrder_BadJSON(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Post(ts.URL+"/api/papertrade/orders", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &paper.ValidationError{Field: "quantity", Reason: "must be positive"}, http.StatusBadRequest},
		{"balance", &paper.InsufficientBalanceError{Available: 1000, Required: 5000}, http.StatusBadRequest},
		{"quote", &paper.QuoteUnavailableError{Instrument: "25000CE"}, http.StatusServiceUnavailable},
		{"notfound", &paper.NotFoundError{Kind: "portfolio", ID: "s1"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, &stubEngine{placeErr: tc.err}, &stubMD{}, &stubHistory{}, nil)
			body := `{"sessionId":"s1","side":"BUY","quantity":1}`
			resp, err := http.Post(ts.URL+"/api/papertrade/orders", "application/json", strings.NewReader(body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestInsufficientBalance_IncludesAmounts(t *testing.T) {
	placeErr := &paper.InsufficientBalanceError{Available: 1000, Required: 5000}
	ts := newTestServer(t, &stubEngine{placeErr: placeErr}, &stubMD{}, &stubHistory{}, nil)

	body := `{"sessionId":"s1","side":"BUY","quantity":1}`
	resp, err := http.Post(ts.URL+"/api/papertrade/orders", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Available float64 `json:"available"`
		Required  float64 `json:"required"`
	}
	decode(t, resp, &out)
	if out.Available != 1000 || out.Required != 5000 {
		t.Errorf("body = %+v", out)
	}
}

func TestListOrders_FilterParams(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(t, engine, &stubMD{}, &stubHistory{}, nil)

	resp, err := http.Get(ts.URL + "/api/papertrade/orders?sessionId=s1&status=FILLED&limit=10&offset=5")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	decode(t, resp, &out)
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}
	f := engine.lastFilter
	if f.SessionID != "s1" || f.Status != "FILLED" || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
}

func TestPnL_GreeksFlag(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(t, engine, &stubMD{}, &stubHistory{}, nil)

	resp, err := http.Get(ts.URL + "/api/papertrade/pnl?sessionId=s1&includeGreeks=true")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !engine.pnlGreeks {
		t.Error("includeGreeks not forwarded")
	}
}

func TestReset_RequiresPost(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/papertrade/reset?sessionId=s1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/papertrade/reset?sessionId=s1", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestNiftyLive_UpstreamDown(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{quoteErr: context.DeadlineExceeded}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/nifty/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestNiftyHistory_StoreFirst(t *testing.T) {
	history := &stubHistory{candles: []model.Candle{{Close: 24800, Interval: "5min"}}}
	md := &stubMD{hist: []model.Candle{{Close: 1, Interval: "5min"}}}
	ts := newTestServer(t, &stubEngine{}, md, history, nil)

	resp, err := http.Get(ts.URL + "/api/nifty/history?date=2026-08-27&interval=5min")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Source string `json:"source"`
		Count  int    `json:"count"`
	}
	decode(t, resp, &out)
	if out.Source != "store" || out.Count != 1 {
		t.Errorf("source=%q count=%d, want store/1", out.Source, out.Count)
	}
}

func TestNiftyHistory_UpstreamFallback(t *testing.T) {
	md := &stubMD{hist: []model.Candle{{Close: 24800}, {Close: 24810}}}
	ts := newTestServer(t, &stubEngine{}, md, &stubHistory{}, nil)

	resp, err := http.Get(ts.URL + "/api/nifty/history?date=2026-08-27")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Source string `json:"source"`
		Count  int    `json:"count"`
	}
	decode(t, resp, &out)
	if out.Source != "upstream" || out.Count != 2 {
		t.Errorf("source=%q count=%d, want upstream/2", out.Source, out.Count)
	}
}

func TestNiftyHistory_BadDate(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/nifty/history?date=27-08-2026")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNiftyHistory_BadInterval(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/nifty/history?date=2026-08-27&interval=7min")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNiftyTape_NilReader(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/nifty/tape")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	decode(t, resp, &out)
	if out.Count != 0 {
		t.Errorf("count = %d, want 0", out.Count)
	}
}

func TestNiftyTape_WithTicks(t *testing.T) {
	tape := &stubTape{ticks: []model.Quote{{LTP: 24800}, {LTP: 24810}}}
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, tape)
	resp, err := http.Get(ts.URL + "/api/nifty/tape?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	decode(t, resp, &out)
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}
}

func TestOptionLive_Validation(t *testing.T) {
	chain := []model.OptionQuote{{
		Strike: 25000, Type: model.TypeCall, LTP: 132.5,
		Expiry: time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC),
	}}
	ts := newTestServer(t, &stubEngine{}, &stubMD{chain: chain}, &stubHistory{}, nil)

	cases := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"ok", "strike=25000&type=CE&expiry=2026-09-08", http.StatusOK},
		{"bad strike", "strike=abc&type=CE&expiry=2026-09-08", http.StatusBadRequest},
		{"bad type", "strike=25000&type=XX&expiry=2026-09-08", http.StatusBadRequest},
		{"bad expiry", "strike=25000&type=CE&expiry=soon", http.StatusBadRequest},
		{"unknown leg", "strike=30000&type=CE&expiry=2026-09-08", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/options/live?" + tc.query)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestOptionChain_ExpiryFilter(t *testing.T) {
	sep8 := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	sep15 := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	chain := []model.OptionQuote{
		{Strike: 25000, Type: model.TypeCall, Expiry: sep8},
		{Strike: 25000, Type: model.TypePut, Expiry: sep8},
		{Strike: 25000, Type: model.TypeCall, Expiry: sep15},
	}
	ts := newTestServer(t, &stubEngine{}, &stubMD{chain: chain}, &stubHistory{}, nil)

	resp, err := http.Get(ts.URL + "/api/options/chain?expiry=2026-09-08")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	decode(t, resp, &out)
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}
}

func TestExpirySchedule(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/expiry/schedule?year=2026&month=9")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Year      int `json:"year"`
		Month     int `json:"month"`
		ExpiryDay string
		Expiries  []struct {
			Date string `json:"date"`
		} `json:"expiries"`
	}
	decode(t, resp, &out)
	if out.Year != 2026 || out.Month != 9 {
		t.Errorf("year/month = %d/%d", out.Year, out.Month)
	}
	if len(out.Expiries) == 0 {
		t.Error("no expiries in schedule")
	}
}

func TestExpirySchedule_BadMonth(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/expiry/schedule?year=2026&month=13")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Phase        string `json:"phase"`
		MarketStatus string `json:"marketStatus"`
		NextOpen     string `json:"nextOpen"`
	}
	decode(t, resp, &out)
	if out.Phase == "" || out.MarketStatus == "" || out.NextOpen == "" {
		t.Errorf("status body incomplete: %+v", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, &stubMD{}, &stubHistory{}, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/nifty/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
