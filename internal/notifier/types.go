package notifier

import (
	"context"
	"encoding/json"
	"time"

	"alertd/internal/config"
	"alertd/internal/storage"
)

// Sources of a notification.
const (
	SourcePoll    = "poll"
	SourceSummary = "summary"
	SourceLocal   = "local"
	SourceTest    = "test"
)

// Notification is one desktop notification.
type Notification struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Body     string          `json:"body,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Silent   bool            `json:"silent,omitempty"`
	Type     string          `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Source   string          `json:"source,omitempty"`
}

// High reports whether the notification asks for critical urgency.
func (n Notification) High() bool { return n.Priority == "high" }

// Sink shows a notification on some surface (OS, chat, log).
type Sink interface {
	Name() string
	Show(ctx context.Context, n Notification) error
}

// Config controls the async delivery pipeline.
type Config struct {
	QueueSize   int
	RatePerSec  int
	HistorySize int
	SendTimeout time.Duration
}

// ConfigFrom maps the settings file section onto Config.
func ConfigFrom(c config.SinkConfig) Config {
	return Config{
		QueueSize:   c.QueueSize,
		RatePerSec:  c.RatePerSec,
		HistorySize: c.HistorySize,
	}
}

// HistoryItem is one delivery attempt.
type HistoryItem = storage.Delivery

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	ID       string        `json:"id"`
	Source   string        `json:"source"`
	Priority string        `json:"priority,omitempty"`
	Sink     string        `json:"sink,omitempty"`
	At       time.Time     `json:"at"`
	Took     time.Duration `json:"took,omitempty"`
	Error    string        `json:"error,omitempty"`
}
