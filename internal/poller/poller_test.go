package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

type stubMD struct {
	quote    model.Quote
	quoteErr error
	chain    []model.OptionQuote
	cleared  bool
}

func (s *stubMD) GetLiveQuote(ctx context.Context) (model.Quote, error) {
	return s.quote, s.quoteErr
}
func (s *stubMD) GetOptionChain(ctx context.Context) ([]model.OptionQuote, error) {
	return s.chain, nil
}
func (s *stubMD) ClearCaches() { s.cleared = true }

type stubStore struct {
	candles   []model.Candle
	snapshots []model.OptionQuote
}

func (s *stubStore) InsertCandles(ctx context.Context, c []model.Candle) error {
	s.candles = append(s.candles, c...)
	return nil
}
func (s *stubStore) InsertOptionSnapshots(ctx context.Context, o []model.OptionQuote) error {
	s.snapshots = append(s.snapshots, o...)
	return nil
}

type stubTape struct {
	ticks []model.Quote
}

func (s *stubTape) WriteQuote(ctx context.Context, q model.Quote) error {
	s.ticks = append(s.ticks, q)
	return nil
}

type stubHub struct {
	quotes   []model.Quote
	statuses []string
}

func (s *stubHub) BroadcastQuote(q model.Quote)  { s.quotes = append(s.quotes, q) }
func (s *stubHub) BroadcastStatus(status string) { s.statuses = append(s.statuses, status) }

type stubEngine struct {
	repriced int
	dayReset int
}

func (s *stubEngine) RepriceAll(ctx context.Context) error  { s.repriced++; return nil }
func (s *stubEngine) ResetDayPnl(ctx context.Context) error { s.dayReset++; return nil }

// Wednesday 2026-09-02 at fixed times.
func istTime(hour, min int) time.Time {
	return time.Date(2026, 9, 2, hour, min, 0, 0, marketsession.IST)
}

func newTestPoller(md *stubMD, store *stubStore, tape *stubTape, hub *stubHub, engine *stubEngine, at time.Time) *Poller {
	clock := &marketsession.Clock{ExpiryWeekday: time.Tuesday}
	var tw TapeWriter
	if tape != nil {
		tw = tape
	}
	var bc Broadcaster
	if hub != nil {
		bc = hub
	}
	p := New(md, store, tw, bc, engine, clock, nil, Config{})
	p.now = func() time.Time { return at }
	return p
}

func TestPollIndex_DuringMarketHours(t *testing.T) {
	md := &stubMD{quote: model.Quote{Symbol: "NIFTY 50", LTP: 24825.8, Open: 24700, Volume: 100}}
	store := &stubStore{}
	tape := &stubTape{}
	hub := &stubHub{}
	p := newTestPoller(md, store, tape, hub, &stubEngine{}, istTime(10, 0))

	if err := p.PollIndex(context.Background()); err != nil {
		t.Fatalf("PollIndex: %v", err)
	}
	if len(store.candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(store.candles))
	}
	c := store.candles[0]
	if c.Close != 24825.8 || c.Interval != "tick" || c.Date != "2026-09-02" {
		t.Errorf("candle = %+v", c)
	}
	if len(tape.ticks) != 1 || len(hub.quotes) != 1 {
		t.Errorf("tape=%d hub=%d, want 1/1", len(tape.ticks), len(hub.quotes))
	}
}

func TestPollIndex_ReportsPollTime(t *testing.T) {
	md := &stubMD{quote: model.Quote{Symbol: "NIFTY 50", LTP: 24825.8}}
	p := newTestPoller(md, &stubStore{}, nil, nil, &stubEngine{}, istTime(10, 0))
	var polled []time.Time
	p.OnPoll = func(ts time.Time) { polled = append(polled, ts) }

	if err := p.PollIndex(context.Background()); err != nil {
		t.Fatalf("PollIndex: %v", err)
	}
	if len(polled) != 1 || !polled[0].Equal(istTime(10, 0)) {
		t.Errorf("polled = %v, want [%v]", polled, istTime(10, 0))
	}

	// Skipped polls and failed fetches report nothing.
	p.now = func() time.Time { return istTime(8, 0) }
	p.PollIndex(context.Background())
	p.now = func() time.Time { return istTime(10, 1) }
	md.quoteErr = errors.New("down")
	p.PollIndex(context.Background())
	if len(polled) != 1 {
		t.Errorf("polled = %d times, want 1", len(polled))
	}
}

func TestPollIndex_SkippedWhenClosed(t *testing.T) {
	md := &stubMD{quote: model.Quote{LTP: 24825.8}}
	store := &stubStore{}
	p := newTestPoller(md, store, nil, nil, &stubEngine{}, istTime(8, 0))

	if err := p.PollIndex(context.Background()); err != nil {
		t.Fatalf("PollIndex: %v", err)
	}
	if len(store.candles) != 0 {
		t.Errorf("poll ran while closed")
	}
}

func TestPollIndex_UpstreamError(t *testing.T) {
	md := &stubMD{quoteErr: errors.New("down")}
	p := newTestPoller(md, &stubStore{}, nil, nil, &stubEngine{}, istTime(10, 0))
	if err := p.PollIndex(context.Background()); err == nil {
		t.Error("expected error from upstream")
	}
}

func TestPollChain(t *testing.T) {
	md := &stubMD{chain: []model.OptionQuote{
		{Strike: 25000, Type: model.TypeCall, LTP: 132.5},
		{Strike: 25000, Type: model.TypePut, LTP: 98.25},
	}}
	store := &stubStore{}
	p := newTestPoller(md, store, nil, nil, &stubEngine{}, istTime(10, 0))

	if err := p.PollChain(context.Background()); err != nil {
		t.Fatalf("PollChain: %v", err)
	}
	if len(store.snapshots) != 2 {
		t.Errorf("snapshots = %d, want 2", len(store.snapshots))
	}
}

func TestRepriceSweep_GatedOnMarketHours(t *testing.T) {
	engine := &stubEngine{}
	p := newTestPoller(&stubMD{}, &stubStore{}, nil, nil, engine, istTime(10, 0))
	if err := p.RepriceSweep(context.Background()); err != nil {
		t.Fatalf("RepriceSweep: %v", err)
	}
	if engine.repriced != 1 {
		t.Errorf("repriced = %d, want 1", engine.repriced)
	}

	p.now = func() time.Time { return istTime(17, 0) }
	p.RepriceSweep(context.Background())
	if engine.repriced != 1 {
		t.Errorf("sweep ran after close")
	}
}

func TestEndOfDay_OncePerDay(t *testing.T) {
	md := &stubMD{}
	engine := &stubEngine{}
	p := newTestPoller(md, &stubStore{}, nil, nil, engine, istTime(16, 1))

	p.maybeEndOfDay(context.Background())
	p.maybeEndOfDay(context.Background())
	if engine.dayReset != 1 {
		t.Errorf("dayReset = %d, want 1", engine.dayReset)
	}
	if !md.cleared {
		t.Error("caches not cleared")
	}

	// Before 16:00 nothing runs.
	p2 := newTestPoller(md, &stubStore{}, nil, nil, engine, istTime(15, 0))
	before := engine.dayReset
	p2.maybeEndOfDay(context.Background())
	if engine.dayReset != before {
		t.Error("end-of-day ran before 16:00")
	}
}

func TestPushStatus_OnTransitionOnly(t *testing.T) {
	hub := &stubHub{}
	p := newTestPoller(&stubMD{}, &stubStore{}, nil, hub, &stubEngine{}, istTime(10, 0))

	p.pushStatus()
	p.pushStatus()
	if len(hub.statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(hub.statuses))
	}

	p.now = func() time.Time { return istTime(15, 45) }
	p.pushStatus()
	if len(hub.statuses) != 2 {
		t.Errorf("statuses = %d after phase change, want 2", len(hub.statuses))
	}
}

func TestPushStatus_NotifiesOnTransition(t *testing.T) {
	p := newTestPoller(&stubMD{}, &stubStore{}, nil, &stubHub{}, &stubEngine{}, istTime(10, 0))
	var notified []string
	p.OnStatusChange = func(status string) { notified = append(notified, status) }

	p.pushStatus()
	p.pushStatus() // same phase, no second notification
	if len(notified) != 1 {
		t.Fatalf("notified = %v, want one entry", notified)
	}

	p.now = func() time.Time { return istTime(17, 0) }
	p.pushStatus()
	if len(notified) != 2 || notified[1] == notified[0] {
		t.Errorf("notified = %v, want a second, different status", notified)
	}
}
