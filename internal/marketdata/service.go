// Package marketdata serves quotes to the rest of the system. It sits
// between the upstream fetchers and everything that consumes prices
// (order fills, repricing, the HTTP API), caching each feed on its own
// TTL so a burst of requests never hammers the upstream.
package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/quotecache"
)

const (
	liveQuoteKey   = "nifty_live"
	optionChainKey = "option_chain"

	defaultQuoteTTL = 30 * time.Second
	defaultChainTTL = 60 * time.Second
	defaultHistTTL  = time.Hour
)

// Fetcher is the upstream quote source.
type Fetcher interface {
	GetLiveQuote(ctx context.Context) (model.Quote, error)
	GetOptionChain(ctx context.Context) ([]model.OptionQuote, error)
	GetHistoricalQuotes(ctx context.Context, date, interval string) ([]model.Candle, error)
}

// Config sets the per-feed cache TTLs. Zero values take defaults.
type Config struct {
	QuoteTTL      time.Duration
	ChainTTL      time.Duration
	HistoricalTTL time.Duration
}

// Service is the cached market data source.
type Service struct {
	fetcher Fetcher
	clock   *marketsession.Clock

	quotes *quotecache.Cache[model.Quote]
	chains *quotecache.Cache[[]model.OptionQuote]
	hist   *quotecache.Cache[[]model.Candle]
}

// New creates a Service over the given fetcher and session clock.
func New(fetcher Fetcher, clock *marketsession.Clock, cfg Config) *Service {
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = defaultQuoteTTL
	}
	if cfg.ChainTTL == 0 {
		cfg.ChainTTL = defaultChainTTL
	}
	if cfg.HistoricalTTL == 0 {
		cfg.HistoricalTTL = defaultHistTTL
	}
	return &Service{
		fetcher: fetcher,
		clock:   clock,
		quotes:  quotecache.New[model.Quote](cfg.QuoteTTL),
		chains:  quotecache.New[[]model.OptionQuote](cfg.ChainTTL),
		hist:    quotecache.New[[]model.Candle](cfg.HistoricalTTL),
	}
}

// GetLiveQuote returns the live NIFTY quote, cached for the quote TTL
// and stamped with the current market phase.
func (s *Service) GetLiveQuote(ctx context.Context) (model.Quote, error) {
	q, err := s.quotes.GetOrFetch(ctx, liveQuoteKey, s.fetcher.GetLiveQuote)
	if err != nil {
		return model.Quote{}, err
	}
	q.MarketStatus = s.clock.StatusString(time.Now())
	return q, nil
}

// GetOptionChain returns the full option chain, cached for the chain TTL.
func (s *Service) GetOptionChain(ctx context.Context) ([]model.OptionQuote, error) {
	return s.chains.GetOrFetch(ctx, optionChainKey, s.fetcher.GetOptionChain)
}

// GetOption looks up one leg of the chain by strike, type and expiry
// calendar day. The chain snapshot comes through the cache, so repeated
// lookups during a fill burst cost one upstream call.
func (s *Service) GetOption(ctx context.Context, strike int, typ string, expiry time.Time) (model.OptionQuote, error) {
	chain, err := s.GetOptionChain(ctx)
	if err != nil {
		return model.OptionQuote{}, err
	}
	for _, leg := range chain {
		if leg.Strike == strike && leg.Type == typ && model.SameDate(leg.Expiry, expiry) {
			return leg, nil
		}
	}
	return model.OptionQuote{}, fmt.Errorf("option %d %s %s not in chain", strike, typ, expiry.Format("2006-01-02"))
}

// GetHistoricalQuotes returns one day of index bars, cached per
// date+interval for the historical TTL.
func (s *Service) GetHistoricalQuotes(ctx context.Context, date, interval string) ([]model.Candle, error) {
	key := date + "_" + interval
	return s.hist.GetOrFetch(ctx, key, func(ctx context.Context) ([]model.Candle, error) {
		return s.fetcher.GetHistoricalQuotes(ctx, date, interval)
	})
}

// ClearCaches drops every cached value. Runs at end-of-day so the next
// session starts from fresh data.
func (s *Service) ClearCaches() {
	s.quotes.Clear()
	s.chains.Clear()
	s.hist.Clear()
	log.Printf("[marketdata] caches cleared")
}

// CacheStats reports hit/miss/stale counters per feed.
func (s *Service) CacheStats() map[string]map[string]int64 {
	stats := make(map[string]map[string]int64, 3)
	for name, c := range map[string]interface{ Stats() (int64, int64, int64) }{
		"quote":      s.quotes,
		"chain":      s.chains,
		"historical": s.hist,
	} {
		h, m, st := c.Stats()
		stats[name] = map[string]int64{"hits": h, "misses": m, "stale": st}
	}
	return stats
}
