// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trading backend.
type Metrics struct {
	OrdersTotal *prometheus.CounterVec // labels: side

	PollTicksTotal  prometheus.Counter
	ChainPollsTotal prometheus.Counter
	RepriceSweepDur prometheus.Histogram

	WSClients          prometheus.Gauge
	MarketState        prometheus.Gauge // 0=closed, 1=open
	RedisBreakerState  prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedTicks prometheus.Gauge
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_orders_total",
			Help: "Filled orders by side",
		}, []string{"side"}),

		PollTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_poll_ticks_total",
			Help: "Index quote poll ticks written to the tape",
		}),
		ChainPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_chain_polls_total",
			Help: "Option chain snapshots persisted",
		}),
		RepriceSweepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_reprice_sweep_duration_seconds",
			Help:    "Full portfolio reprice sweep latency",
			Buckets: prometheus.DefBuckets,
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedTicks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_redis_buffered_ticks",
			Help: "Ticks held locally while the Redis circuit is open",
		}),
	}

	prometheus.MustRegister(
		m.OrdersTotal,
		m.PollTicksTotal,
		m.ChainPollsTotal,
		m.RepriceSweepDur,
		m.WSClients,
		m.MarketState,
		m.RedisBreakerState,
		m.RedisBufferedTicks,
	)
	return m
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool
	RedisConnected bool
	RedisEnabled   bool
	LastPollTime   time.Time

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		RedisEnabled: redisEnabled,
	}
}

func (h *HealthStatus) SetLastPollTime(t time.Time) {
	h.mu.Lock()
	h.LastPollTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}

	lastPoll := ""
	if !h.LastPollTime.IsZero() {
		lastPoll = h.LastPollTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastPollTime    string  `json:"last_poll_time"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastPollTime:    lastPoll,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
