package storage

import (
	"errors"
	"strings"
	"time"

	"alertd/internal/config"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxRows bounds the sqlite table; older rows are pruned. 0 means 5000.
	MaxRows int
}

// ConfigFrom maps the settings file section. A nil section disables storage.
func ConfigFrom(sc *config.StorageConfig) Config {
	if sc == nil {
		return Config{}
	}
	bt, _ := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	return Config{
		Driver:      strings.TrimSpace(sc.Driver),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: bt,
	}
}

// Delivery records one notification handed to a sink.
// Keep it compact and schema-stable.
type Delivery struct {
	At       time.Time `json:"at"`
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	Priority string    `json:"priority,omitempty"`
	Source   string    `json:"source,omitempty"`
	Sink     string    `json:"sink"`
	Error    string    `json:"error,omitempty"`
}
