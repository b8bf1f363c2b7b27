// Package notification delivers trading events to external channels:
// order fills to a webhook or Telegram chat, with a log fallback for
// development. Delivery is best-effort; a failed send never affects
// the order path.
package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

// Level is the event severity.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Event is one notification payload.
type Event struct {
	Level     Level  `json:"level"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// Notifier delivers events to one channel.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// FillEvent formats an accepted order as a notification.
func FillEvent(o *model.Order) Event {
	return Event{
		Level: LevelInfo,
		Title: fmt.Sprintf("%s %s", o.Side, o.Instrument().Key()),
		Message: fmt.Sprintf("%d lot(s) filled @ %.2f (total %.2f)",
			o.Quantity, o.EntryPrice, o.TotalValue),
		SessionID: o.SessionID,
	}
}

// StatusEvent formats a market phase transition as a notification.
func StatusEvent(status string) Event {
	return Event{Level: LevelInfo, Title: "Market status", Message: status}
}

// LogNotifier writes events to the process log. Used when no external
// channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	log.Printf("[notify] [%s] %s: %s", ev.Level, ev.Title, ev.Message)
	return nil
}

// Fanout delivers each event to every configured channel. Errors are
// logged, never returned to the caller.
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) Send(ctx context.Context, ev Event) error {
	for _, n := range f.notifiers {
		if err := n.Send(ctx, ev); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
	}
	return nil
}
