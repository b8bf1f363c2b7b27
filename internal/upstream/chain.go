package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// expiry layouts seen from the NSE proxy: "30-Sep-2026" on chain rows,
// ISO dates from some mirrors.
var expiryLayouts = []string{"02-Jan-2006", "2006-01-02"}

func parseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised expiry date %q", s)
}

type chainLeg struct {
	LastPrice         flexFloat `json:"lastPrice"`
	OpenPrice         flexFloat `json:"openPrice"`
	DayHigh           flexFloat `json:"dayHigh"`
	DayLow            flexFloat `json:"dayLow"`
	PrevClose         flexFloat `json:"prevClose"`
	TotalTradedVolume flexFloat `json:"totalTradedVolume"`
	OpenInterest      flexFloat `json:"openInterest"`
	Change            flexFloat `json:"change"`
	PChange           flexFloat `json:"pChange"`
	ImpliedVolatility flexFloat `json:"impliedVolatility"`
}

type chainRow struct {
	StrikePrice int       `json:"strikePrice"`
	ExpiryDate  string    `json:"expiryDate"`
	CE          *chainLeg `json:"CE"`
	PE          *chainLeg `json:"PE"`
}

type chainPayload struct {
	Filtered *struct {
		Data []chainRow `json:"data"`
	} `json:"filtered"`
	Records *struct {
		Data []chainRow `json:"data"`
	} `json:"records"`
}

// GetOptionChain fetches and flattens the full NIFTY option chain.
// Rows with unparsable expiries are skipped rather than failing the
// whole snapshot.
func (c *Client) GetOptionChain(ctx context.Context) ([]model.OptionQuote, error) {
	var payload chainPayload
	url := c.cfg.NSEBaseURL + "/option-chain-nifty"
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("option chain: %w", err)
	}

	rows := []chainRow(nil)
	if payload.Filtered != nil && len(payload.Filtered.Data) > 0 {
		rows = payload.Filtered.Data
	} else if payload.Records != nil {
		rows = payload.Records.Data
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("option chain: empty payload")
	}

	now := time.Now().UTC()
	options := make([]model.OptionQuote, 0, len(rows)*2)
	for _, row := range rows {
		expiry, err := parseExpiry(row.ExpiryDate)
		if err != nil {
			continue
		}
		if row.CE != nil {
			options = append(options, legToQuote(row.StrikePrice, model.TypeCall, expiry, row.CE, now))
		}
		if row.PE != nil {
			options = append(options, legToQuote(row.StrikePrice, model.TypePut, expiry, row.PE, now))
		}
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("option chain: no parsable rows")
	}
	return options, nil
}

func legToQuote(strike int, typ string, expiry time.Time, leg *chainLeg, ts time.Time) model.OptionQuote {
	return model.OptionQuote{
		Strike:        strike,
		Type:          typ,
		Expiry:        expiry,
		LTP:           float64(leg.LastPrice),
		Open:          float64(leg.OpenPrice),
		High:          float64(leg.DayHigh),
		Low:           float64(leg.DayLow),
		Close:         float64(leg.PrevClose),
		Volume:        int64(leg.TotalTradedVolume),
		OI:            int64(leg.OpenInterest),
		Change:        float64(leg.Change),
		ChangePercent: float64(leg.PChange),
		IV:            float64(leg.ImpliedVolatility),
		Timestamp:     ts,
	}
}
