// Package upstream fetches market data from external quote sources:
// the NSE proxy API for live index quotes and the option chain, Yahoo
// Finance for historical bars, and optionally a broker market-data API
// (SmartAPI-style, TOTP login) as the preferred live quote source.
//
// Every call is bounded by the configured timeout; callers treat a
// timeout like any other fetch failure and fall back to cached data.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config holds upstream endpoints and the optional broker credentials.
type Config struct {
	NSEBaseURL   string
	YahooBaseURL string
	Timeout      time.Duration

	// Optional broker feed. All four must be set to enable it.
	BrokerBaseURL    string
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string
}

// Client is the upstream quote source.
type Client struct {
	cfg    Config
	http   *http.Client
	broker *broker
}

// New creates a Client. Timeout defaults to 10s.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BrokerAPIKey != "" && cfg.BrokerClientCode != "" && cfg.BrokerPassword != "" && cfg.BrokerTOTPSecret != "" {
		c.broker = newBroker(c.http, cfg)
	}
	return c
}

// flexFloat tolerates upstream numbers encoded as JSON strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" || s == "-" {
		*f = 0
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// GetLiveQuote fetches the live NIFTY 50 quote. When the broker feed
// is configured it is tried first; the NSE proxy is the fallback.
func (c *Client) GetLiveQuote(ctx context.Context) (model.Quote, error) {
	if c.broker != nil {
		if q, err := c.broker.getLTP(ctx); err == nil {
			return q, nil
		}
		// Broker failure is not fatal; the proxy still serves.
	}
	return c.getNSEQuote(ctx)
}

func (c *Client) getNSEQuote(ctx context.Context) (model.Quote, error) {
	var raw struct {
		LastPrice         flexFloat `json:"lastPrice"`
		Open              flexFloat `json:"open"`
		DayHigh           flexFloat `json:"dayHigh"`
		DayLow            flexFloat `json:"dayLow"`
		PreviousClose     flexFloat `json:"previousClose"`
		Change            flexFloat `json:"change"`
		PChange           flexFloat `json:"pChange"`
		TotalTradedVolume flexFloat `json:"totalTradedVolume"`
	}
	url := c.cfg.NSEBaseURL + "/quote/NIFTY%2050"
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return model.Quote{}, fmt.Errorf("nse quote: %w", err)
	}
	return model.Quote{
		Symbol:        "NIFTY 50",
		LTP:           float64(raw.LastPrice),
		Open:          float64(raw.Open),
		High:          float64(raw.DayHigh),
		Low:           float64(raw.DayLow),
		Close:         float64(raw.PreviousClose),
		Change:        float64(raw.Change),
		ChangePercent: float64(raw.PChange),
		Volume:        int64(raw.TotalTradedVolume),
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
