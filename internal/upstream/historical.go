package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// yahooSymbol is the Yahoo Finance ticker for the NIFTY 50 index.
const yahooSymbol = "%5ENSEI" // ^NSEI

var intervalToYahoo = map[string]string{
	"1min":  "1m",
	"5min":  "5m",
	"15min": "15m",
	"30min": "30m",
	"1h":    "1h",
	"day":   "1d",
}

// ValidInterval reports whether interval is a supported bar size.
func ValidInterval(interval string) bool {
	_, ok := intervalToYahoo[interval]
	return ok
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// GetHistoricalQuotes fetches one calendar day of index bars at the
// given interval (1min, 5min, 15min, 30min, 1h, day). Bars with a zero
// open are dropped — Yahoo pads gaps with nulls that decode to zero.
func (c *Client) GetHistoricalQuotes(ctx context.Context, date string, interval string) ([]model.Candle, error) {
	yaInterval, ok := intervalToYahoo[interval]
	if !ok {
		return nil, fmt.Errorf("historical: unsupported interval %q", interval)
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("historical: bad date %q: %w", date, err)
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprint(day.Unix()))
	q.Set("period2", fmt.Sprint(day.AddDate(0, 0, 1).Unix()))
	q.Set("interval", yaInterval)
	q.Set("includePrePost", "false")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.cfg.YahooBaseURL, yahooSymbol, q.Encode())

	var chart yahooChart
	if err := c.getJSON(ctx, u, &chart); err != nil {
		return nil, fmt.Errorf("historical: %w", err)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("historical: no data for %s", date)
	}

	result := chart.Chart.Result[0]
	ohlcv := result.Indicators.Quote[0]
	candles := make([]model.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := model.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Interval:  interval,
			Date:      date,
		}
		if i < len(ohlcv.Open) {
			c.Open = ohlcv.Open[i]
		}
		if i < len(ohlcv.High) {
			c.High = ohlcv.High[i]
		}
		if i < len(ohlcv.Low) {
			c.Low = ohlcv.Low[i]
		}
		if i < len(ohlcv.Close) {
			c.Close = ohlcv.Close[i]
		}
		if i < len(ohlcv.Volume) {
			c.Volume = ohlcv.Volume[i]
		}
		if c.Open > 0 {
			candles = append(candles, c)
		}
	}
	return candles, nil
}
