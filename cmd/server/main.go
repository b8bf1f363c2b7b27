package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/RNSsanjay/Nefty-Trade/config"
	"github.com/RNSsanjay/Nefty-Trade/internal/gateway"
	"github.com/RNSsanjay/Nefty-Trade/internal/marketdata"
	"github.com/RNSsanjay/Nefty-Trade/internal/marketsession"
	"github.com/RNSsanjay/Nefty-Trade/internal/metrics"
	"github.com/RNSsanjay/Nefty-Trade/internal/model"
	"github.com/RNSsanjay/Nefty-Trade/internal/notification"
	"github.com/RNSsanjay/Nefty-Trade/internal/paper"
	"github.com/RNSsanjay/Nefty-Trade/internal/poller"
	redisstore "github.com/RNSsanjay/Nefty-Trade/internal/store/redis"
	sqlitestore "github.com/RNSsanjay/Nefty-Trade/internal/store/sqlite"
	"github.com/RNSsanjay/Nefty-Trade/internal/upstream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[server] starting...")

	if err := godotenv.Load(); err == nil {
		log.Println("[server] loaded .env")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[server] sqlite init failed: %v", err)
	}
	defer store.Close()
	log.Printf("[server] sqlite ready at %s", cfg.SQLitePath)

	// ---- Redis tape (optional) ----
	var tape *redisstore.Tape
	if cfg.RedisAddr != "" {
		tape, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[server] WARNING: redis init failed: %v (continuing without tape)", err)
			tape = nil
		}
	} else {
		log.Println("[server] REDIS_ADDR not set, tape disabled")
	}

	// ---- Health & metrics ----
	met := metrics.New()
	health := metrics.NewHealthStatus(cfg.RedisAddr != "")
	health.CheckSQLite(ctx, store.DB())
	if tape != nil {
		health.CheckRedis(ctx, tape.Client())
		health.StartLivenessChecker(ctx, tape.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Market data ----
	clock := marketsession.NewClock(cfg.ExpiryWeekday)
	fetcher := upstream.New(upstream.Config{
		NSEBaseURL:       cfg.NSEBaseURL,
		YahooBaseURL:     cfg.YahooBaseURL,
		Timeout:          cfg.UpstreamTimeout,
		BrokerBaseURL:    cfg.BrokerBaseURL,
		BrokerAPIKey:     cfg.BrokerAPIKey,
		BrokerClientCode: cfg.BrokerClientCode,
		BrokerPassword:   cfg.BrokerPassword,
		BrokerTOTPSecret: cfg.BrokerTOTPSecret,
	})
	if cfg.BrokerConfigured() {
		log.Println("[server] broker feed enabled")
	}
	md := marketdata.New(fetcher, clock, marketdata.Config{
		QuoteTTL:      cfg.QuoteTTL,
		ChainTTL:      cfg.ChainTTL,
		HistoricalTTL: cfg.HistoryTTL,
	})

	// ---- Trading engine ----
	engine := paper.New(store, md, paper.Config{
		InitialBalance: cfg.InitialBalance,
		LotSize:        cfg.LotSize,
		StrikeStep:     cfg.StrikeStep,
		MaxQuantity:    cfg.MaxQuantity,
		Volatility:     cfg.ImpliedVol,
		RiskFreeRate:   cfg.RiskFreeRate,
	})

	// ---- Fill notifications ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notify := notification.NewFanout(notifiers...)
	engine.OnFill = func(o *model.Order) {
		met.OrdersTotal.WithLabelValues(o.Side).Inc()
		ev := notification.FillEvent(o)
		go func() {
			sendCtx, sendCancel := context.WithTimeout(ctx, 10*time.Second)
			defer sendCancel()
			notify.Send(sendCtx, ev)
		}()
	}

	// ---- WebSocket hub + background poller ----
	hub := gateway.NewHub()
	var tapeWriter poller.TapeWriter
	var tapeReader gateway.TapeReader
	if tape != nil {
		tapeWriter = tape
		tapeReader = tape
	}
	engine.OnReprice = hub.BroadcastReprice
	pol := poller.New(md, store, tapeWriter, hub, engine, clock, met, poller.Config{
		PollInterval:      cfg.PollInterval,
		ChainPollInterval: cfg.ChainPollInterval,
	})
	pol.OnPoll = health.SetLastPollTime
	pol.OnStatusChange = func(status string) {
		ev := notification.StatusEvent(status)
		go func() {
			sendCtx, sendCancel := context.WithTimeout(ctx, 10*time.Second)
			defer sendCancel()
			notify.Send(sendCtx, ev)
		}()
	}
	go pol.Run(ctx)

	// Gauge refresh for values only readable by polling.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				met.WSClients.Set(float64(hub.ClientCount()))
				if tape != nil {
					met.RedisBreakerState.Set(float64(tape.BreakerState()))
					met.RedisBufferedTicks.Set(float64(tape.PendingCount()))
				}
			}
		}
	}()

	// ---- HTTP server ----
	srv := gateway.NewServer(engine, md, store, tapeReader, clock, hub, health)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Printf("[server] listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] http: %v", err)
		}
	}()

	log.Printf("[server] %s", clock.StatusString(time.Now()))

	<-sigCh
	log.Println("[server] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] http shutdown: %v", err)
	}
	if tape != nil {
		tape.Close()
	}
	log.Println("[server] shutdown complete.")
}
