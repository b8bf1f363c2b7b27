package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP server
	HTTPAddr string

	// Upstream endpoints
	NSEBaseURL      string
	YahooBaseURL    string
	UpstreamTimeout time.Duration

	// Infrastructure
	RedisAddr     string // empty disables the Redis tape
	RedisPassword string
	SQLitePath    string

	// Trading parameters
	InitialBalance float64
	LotSize        int
	StrikeStep     int
	MaxQuantity    int
	ImpliedVol     float64
	RiskFreeRate   float64
	ExpiryWeekday  time.Weekday

	// Cache TTLs
	QuoteTTL   time.Duration
	ChainTTL   time.Duration
	HistoryTTL time.Duration

	// Poll cadence
	PollInterval      time.Duration
	ChainPollInterval time.Duration

	// Broker credentials for the authenticated data feed. All four must
	// be set to enable it; otherwise the public NSE endpoint is used.
	BrokerBaseURL    string
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Optional fill notification channels.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":3001"),

		NSEBaseURL:      getEnv("NSE_API_BASE_URL", "https://www.nseindia.com/api"),
		YahooBaseURL:    getEnv("YAHOO_FINANCE_BASE_URL", "https://query1.finance.yahoo.com"),
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrade.db"),

		InitialBalance: getFloat("INITIAL_BALANCE", 1_000_000),
		LotSize:        getInt("NIFTY_LOT_SIZE", 50),
		StrikeStep:     getInt("STRIKE_STEP", 50),
		MaxQuantity:    getInt("MAX_QUANTITY", 100),
		ImpliedVol:     getFloat("IMPLIED_VOL", 0.20),
		RiskFreeRate:   getFloat("RISK_FREE_RATE", 0.06),
		ExpiryWeekday:  getWeekday("EXPIRY_WEEKDAY", time.Tuesday),

		QuoteTTL:   getDuration("QUOTE_TTL", 30*time.Second),
		ChainTTL:   getDuration("CHAIN_TTL", time.Minute),
		HistoryTTL: getDuration("HISTORY_TTL", time.Hour),

		PollInterval:      getDuration("POLL_INTERVAL", 30*time.Second),
		ChainPollInterval: getDuration("CHAIN_POLL_INTERVAL", 2*time.Minute),

		BrokerBaseURL:    getEnv("BROKER_BASE_URL", "https://apiconnect.angelbroking.com"),
		BrokerAPIKey:     getEnv("BROKER_API_KEY", ""),
		BrokerClientCode: getEnv("BROKER_CLIENT_CODE", ""),
		BrokerPassword:   getEnv("BROKER_PASSWORD", ""),
		BrokerTOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// BrokerConfigured reports whether every broker credential is present.
func (c *Config) BrokerConfigured() bool {
	return c.BrokerAPIKey != "" && c.BrokerClientCode != "" &&
		c.BrokerPassword != "" && c.BrokerTOTPSecret != ""
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getWeekday(key string, fallback time.Weekday) time.Weekday {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(v, wd.String()) {
			return wd
		}
	}
	log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
	return fallback
}
