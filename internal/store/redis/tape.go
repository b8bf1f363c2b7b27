// Package redis keeps the live quote tape: every polled tick lands on
// a capped Redis stream plus a latest-value key, and is published for
// any external subscriber. Redis is optional — the tape degrades to
// local buffering behind a circuit breaker when the server is away.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

const (
	tapeStreamKey = "tape:nifty"
	latestKey     = "quote:nifty:latest"
	pubsubChannel = "pub:quote:nifty"

	// One trading day of 30s ticks plus slack.
	tapeMaxLen       = 1000
	defaultLatestTTL = 30 * time.Minute

	maxBufferedTicks = 1000
)

// Config configures the tape connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Tape writes and reads the live quote stream. Writes go through a
// circuit breaker; ticks arriving while the breaker is open are held
// locally and flushed when Redis comes back.
type Tape struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []model.Quote
}

// Client returns the underlying Redis client for health checks.
func (t *Tape) Client() *goredis.Client { return t.client }

// New connects to Redis and pings it.
func New(cfg Config) (*Tape, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	t := newTape(client, NewCircuitBreaker(5, 10*time.Second))
	log.Printf("[redis] connected to %s", cfg.Addr)
	return t, nil
}

// newTape wires the breaker to the tape: transitions are logged, and
// closing the circuit replays whatever was buffered while it was open.
func newTape(client *goredis.Client, cb *CircuitBreaker) *Tape {
	t := &Tape{client: client, cb: cb}
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
		if to == StateClosed {
			go t.flush()
		}
	}
	return t
}

// WriteQuote appends one tick to the tape: SET latest with TTL, XADD
// to the capped stream, PUBLISH for subscribers — one pipeline. When
// the breaker is open the tick is buffered instead of lost.
func (t *Tape) WriteQuote(ctx context.Context, q model.Quote) error {
	err := t.cb.Execute(func() error {
		return t.writeQuote(ctx, q)
	})
	if err == ErrCircuitOpen {
		t.bufferQuote(q)
		return nil
	}
	return err
}

func (t *Tape) writeQuote(ctx context.Context, q model.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	jsonData := string(data)

	pipe := t.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: tapeStreamKey,
		MaxLen: tapeMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tape pipeline: %w", err)
	}
	return nil
}

func (t *Tape) bufferQuote(q model.Quote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buffer) >= maxBufferedTicks {
		t.buffer = t.buffer[1:]
	}
	t.buffer = append(t.buffer, q)
}

// flush replays ticks buffered while the circuit was open.
func (t *Tape) flush() {
	t.mu.Lock()
	held := t.buffer
	t.buffer = nil
	t.mu.Unlock()
	if len(held) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flushed := 0
	for i := range held {
		if err := t.writeQuote(ctx, held[i]); err != nil {
			log.Printf("[redis] flush stopped after %d tick(s): %v", flushed, err)
			return
		}
		flushed++
	}
	log.Printf("[redis] flushed %d buffered tick(s)", flushed)
}

// PendingCount reports ticks held locally while the circuit is open.
func (t *Tape) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// RecentTicks returns up to n most recent ticks, oldest first.
func (t *Tape) RecentTicks(ctx context.Context, n int) ([]model.Quote, error) {
	if n <= 0 || n > tapeMaxLen {
		n = 100
	}
	msgs, err := t.client.XRevRangeN(ctx, tapeStreamKey, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("tape read: %w", err)
	}

	quotes := make([]model.Quote, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- { // reverse to ascending
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var q model.Quote
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// LatestQuote returns the last written tick, or (nil, nil) when the
// latest key has expired or never been set.
func (t *Tape) LatestQuote(ctx context.Context) (*model.Quote, error) {
	data, err := t.client.Get(ctx, latestKey).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest quote: %w", err)
	}
	var q model.Quote
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, fmt.Errorf("unmarshal latest quote: %w", err)
	}
	return &q, nil
}

// BreakerState reports the circuit state for the status endpoint.
func (t *Tape) BreakerState() State {
	return t.cb.CurrentState()
}

// Close closes the Redis client.
func (t *Tape) Close() error {
	return t.client.Close()
}
