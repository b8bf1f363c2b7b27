package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// NIFTY 50 index token on the broker's NSE capital-market segment.
const (
	brokerNiftyToken  = "99926000"
	brokerNiftySymbol = "Nifty 50"

	loginPath = "/rest/auth/angelbroking/user/v1/loginByPassword"
	ltpPath   = "/rest/secure/angelbroking/order/v1/getLtpData"
)

// broker is a minimal SmartAPI-style market-data session. Login uses a
// time-based OTP generated from the configured secret; the JWT is
// cached and regenerated on auth failure.
type broker struct {
	http *http.Client
	cfg  Config

	mu       sync.Mutex
	jwtToken string
}

func newBroker(httpClient *http.Client, cfg Config) *broker {
	return &broker{http: httpClient, cfg: cfg}
}

type brokerEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// login generates a session with a fresh TOTP code.
func (b *broker) login(ctx context.Context) error {
	code, err := totp.GenerateCode(b.cfg.BrokerTOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("broker totp: %w", err)
	}
	body, _ := json.Marshal(map[string]string{
		"clientcode": b.cfg.BrokerClientCode,
		"password":   b.cfg.BrokerPassword,
		"totp":       code,
	})

	var env brokerEnvelope
	if err := b.post(ctx, loginPath, "", body, &env); err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("broker login rejected: %s", env.Message)
	}
	var data struct {
		JwtToken string `json:"jwtToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.JwtToken == "" {
		return fmt.Errorf("broker login: missing jwt token")
	}

	b.mu.Lock()
	b.jwtToken = data.JwtToken
	b.mu.Unlock()
	log.Printf("[upstream] broker session established for %s", b.cfg.BrokerClientCode)
	return nil
}

// getLTP fetches the index LTP over the broker session, logging in on
// first use or after the session expires.
func (b *broker) getLTP(ctx context.Context) (model.Quote, error) {
	b.mu.Lock()
	token := b.jwtToken
	b.mu.Unlock()

	if token == "" {
		if err := b.login(ctx); err != nil {
			return model.Quote{}, err
		}
		b.mu.Lock()
		token = b.jwtToken
		b.mu.Unlock()
	}

	body, _ := json.Marshal(map[string]string{
		"exchange":      "NSE",
		"tradingsymbol": brokerNiftySymbol,
		"symboltoken":   brokerNiftyToken,
	})

	var env brokerEnvelope
	err := b.post(ctx, ltpPath, token, body, &env)
	if err == nil && !env.Status {
		err = fmt.Errorf("broker ltp rejected: %s", env.Message)
	}
	if err != nil {
		// Session may have lapsed; retry once with a fresh login.
		b.mu.Lock()
		b.jwtToken = ""
		b.mu.Unlock()
		if lerr := b.login(ctx); lerr != nil {
			return model.Quote{}, lerr
		}
		b.mu.Lock()
		token = b.jwtToken
		b.mu.Unlock()
		env = brokerEnvelope{}
		if err = b.post(ctx, ltpPath, token, body, &env); err != nil {
			return model.Quote{}, err
		}
		if !env.Status {
			return model.Quote{}, fmt.Errorf("broker ltp rejected: %s", env.Message)
		}
	}

	var data struct {
		LTP   flexFloat `json:"ltp"`
		Open  flexFloat `json:"open"`
		High  flexFloat `json:"high"`
		Low   flexFloat `json:"low"`
		Close flexFloat `json:"close"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.Quote{}, fmt.Errorf("broker ltp decode: %w", err)
	}
	return model.Quote{
		Symbol:    "NIFTY 50",
		LTP:       float64(data.LTP),
		Open:      float64(data.Open),
		High:      float64(data.High),
		Low:       float64(data.Low),
		Close:     float64(data.Close),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (b *broker) post(ctx context.Context, path, bearer string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BrokerBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", b.cfg.BrokerAPIKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
