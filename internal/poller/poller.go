// Package poller drives the background jobs: the 30s index poll, the
// 2m option chain snapshot, the portfolio reprice sweep, and the
// end-of-day housekeeping at 16:00 IST. Each job is a plain method so
// tests invoke them directly; Run only owns the tickers.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/metrics"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// MarketData is the cached quote source.
type MarketData interface {
	GetLiveQuote(ctx context.Context) (model.Quote, error)
	GetOptionChain(ctx context.Context) ([]model.OptionQuote, error)
	ClearCaches()
}

// HistoryStore persists polled ticks and chain snapshots.
type HistoryStore interface {
	InsertCandles(ctx context.Context, candles []model.Candle) error
	InsertOptionSnapshots(ctx context.Context, options []model.OptionQuote) error
}

// TapeWriter appends ticks to the live tape. Optional.
type TapeWriter interface {
	WriteQuote(ctx context.Context, q model.Quote) error
}

// Broadcaster pushes updates to connected clients. Optional.
type Broadcaster interface {
	BroadcastQuote(q model.Quote)
	BroadcastStatus(status string)
}

// Repricer marks portfolios to market.
type Repricer interface {
	RepriceAll(ctx context.Context) error
	ResetDayPnl(ctx context.Context) error
}

// tickInterval tags polled ticks in the history table, separate from
// the Yahoo bar intervals.
const tickInterval = "tick"

// Config sets the job cadence. Zero values take defaults.
type Config struct {
	PollInterval      time.Duration // default 30s
	ChainPollInterval time.Duration // default 2m
	RepriceInterval   time.Duration // default 30s
}

// Poller runs the background jobs.
type Poller struct {
	md       MarketData
	store    HistoryStore
	tape     TapeWriter  // may be nil
	hub      Broadcaster // may be nil
	engine   Repricer
	clock    *marketsession.Clock
	met      *metrics.Metrics // may be nil
	cfg      Config
	now      func() time.Time

	lastStatus string
	lastEOD    string // YYYY-MM-DD of the last end-of-day run

	// OnPoll, if set, is called with the wall time of each successful
	// index poll. Feeds the health endpoint's last-poll timestamp.
	OnPoll func(t time.Time)

	// OnStatusChange, if set, is called on each market phase
	// transition, after the hub broadcast.
	OnStatusChange func(status string)
}

// New creates a Poller. tape, hub and met may be nil.
func New(md MarketData, store HistoryStore, tape TapeWriter, hub Broadcaster,
	engine Repricer, clock *marketsession.Clock, met *metrics.Metrics, cfg Config) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.ChainPollInterval == 0 {
		cfg.ChainPollInterval = 2 * time.Minute
	}
	if cfg.RepriceInterval == 0 {
		cfg.RepriceInterval = 30 * time.Second
	}
	return &Poller{
		md: md, store: store, tape: tape, hub: hub,
		engine: engine, clock: clock, met: met, cfg: cfg,
		now: time.Now,
	}
}

// PollIndex fetches the live quote and fans it out: history row, tape
// tick, WebSocket push. Skipped outside market hours.
func (p *Poller) PollIndex(ctx context.Context) error {
	now := p.now()
	if !p.clock.IsOpen(now) {
		return nil
	}
	q, err := p.md.GetLiveQuote(ctx)
	if err != nil {
		return err
	}

	ist := now.In(marketsession.IST)
	candle := model.Candle{
		Timestamp: q.Timestamp,
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.LTP,
		Volume:    q.Volume,
		Interval:  tickInterval,
		Date:      ist.Format("2006-01-02"),
	}
	if err := p.store.InsertCandles(ctx, []model.Candle{candle}); err != nil {
		log.Printf("[poller] history insert: %v", err)
	}
	if p.tape != nil {
		if err := p.tape.WriteQuote(ctx, q); err != nil {
			log.Printf("[poller] tape write: %v", err)
		}
	}
	if p.hub != nil {
		p.hub.BroadcastQuote(q)
	}
	if p.met != nil {
		p.met.PollTicksTotal.Inc()
	}
	if p.OnPoll != nil {
		p.OnPoll(now)
	}
	return nil
}

// PollChain snapshots the option chain into SQLite. Duplicate rows
// from overlapping polls are ignored by the store.
func (p *Poller) PollChain(ctx context.Context) error {
	if !p.clock.IsOpen(p.now()) {
		return nil
	}
	chain, err := p.md.GetOptionChain(ctx)
	if err != nil {
		return err
	}
	if err := p.store.InsertOptionSnapshots(ctx, chain); err != nil {
		return err
	}
	if p.met != nil {
		p.met.ChainPollsTotal.Inc()
	}
	return nil
}

// RepriceSweep marks every portfolio to market while the market is
// open. Overlap handling lives in the engine.
func (p *Poller) RepriceSweep(ctx context.Context) error {
	if !p.clock.IsOpen(p.now()) {
		return nil
	}
	start := time.Now()
	err := p.engine.RepriceAll(ctx)
	if p.met != nil {
		p.met.RepriceSweepDur.Observe(time.Since(start).Seconds())
	}
	return err
}

// EndOfDay clears the quote caches and zeroes day P&L. Runs once per
// trading day after the post-market close.
func (p *Poller) EndOfDay(ctx context.Context) error {
	p.md.ClearCaches()
	if err := p.engine.ResetDayPnl(ctx); err != nil {
		return err
	}
	log.Printf("[poller] end-of-day housekeeping complete")
	return nil
}

// maybeEndOfDay runs EndOfDay once after 16:00 IST on trading days.
func (p *Poller) maybeEndOfDay(ctx context.Context) {
	ist := p.now().In(marketsession.IST)
	if !marketsession.IsTradingDay(ist) {
		return
	}
	if ist.Hour() < 16 {
		return
	}
	day := ist.Format("2006-01-02")
	if day == p.lastEOD {
		return
	}
	p.lastEOD = day
	if err := p.EndOfDay(ctx); err != nil {
		log.Printf("[poller] end-of-day: %v", err)
	}
}

// pushStatus broadcasts market phase transitions.
func (p *Poller) pushStatus() {
	now := p.now()
	status := p.clock.StatusString(now)
	if status == p.lastStatus {
		return
	}
	p.lastStatus = status
	if p.hub != nil {
		p.hub.BroadcastStatus(status)
	}
	if p.met != nil {
		if p.clock.IsOpen(now) {
			p.met.MarketState.Set(1)
		} else {
			p.met.MarketState.Set(0)
		}
	}
	if p.OnStatusChange != nil {
		p.OnStatusChange(status)
	}
	log.Printf("[poller] market status: %s", status)
}

// Run drives the jobs until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	pollT := time.NewTicker(p.cfg.PollInterval)
	chainT := time.NewTicker(p.cfg.ChainPollInterval)
	repriceT := time.NewTicker(p.cfg.RepriceInterval)
	houseT := time.NewTicker(time.Minute)
	defer pollT.Stop()
	defer chainT.Stop()
	defer repriceT.Stop()
	defer houseT.Stop()

	log.Printf("[poller] started (poll=%s chain=%s reprice=%s)",
		p.cfg.PollInterval, p.cfg.ChainPollInterval, p.cfg.RepriceInterval)
	p.pushStatus()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[poller] stopped")
			return
		case <-pollT.C:
			if err := p.PollIndex(ctx); err != nil {
				log.Printf("[poller] index poll: %v", err)
			}
		case <-chainT.C:
			if err := p.PollChain(ctx); err != nil {
				log.Printf("[poller] chain poll: %v", err)
			}
		case <-repriceT.C:
			if err := p.RepriceSweep(ctx); err != nil {
				log.Printf("[poller] reprice sweep: %v", err)
			}
		case <-houseT.C:
			p.pushStatus()
			p.maybeEndOfDay(ctx)
		}
	}
}
