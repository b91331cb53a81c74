package config

import (
	"encoding/json"
	"time"
)

const (
	DefaultPollingIntervalMs = 10000
	MinPollingIntervalMs     = 1000
	DefaultServerPort        = "3001"
	TypesAll                 = "all"
)

// Config is the on-disk settings file. Poll is the flat record the settings
// surface edits; every other section is operator tuning.
type Config struct {
	Poll     PollConfig     `json:"poll"`
	Admin    AdminConfig    `json:"admin"`
	Dispatch DispatchConfig `json:"dispatch"`
	Sink     SinkConfig     `json:"sink"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

// PollConfig controls what is polled and how often.
//
// Email takes precedence over UserID when both are set.
// PollingInterval is in milliseconds.
type PollConfig struct {
	APIURL              string `json:"api_url"`
	Email               string `json:"email"`
	UserID              string `json:"user_id"`
	PollingInterval     int    `json:"polling_interval"`
	Types               string `json:"types"`
	Enabled             bool   `json:"enabled"`
	RepeatNotifications bool   `json:"repeat_notifications"`
}

// Interval returns the effective polling period. It never returns less than
// the floor, so a bad value can not produce a hot loop.
func (p PollConfig) Interval() time.Duration {
	ms := p.PollingInterval
	if ms <= 0 {
		ms = DefaultPollingIntervalMs
	}
	if ms < MinPollingIntervalMs {
		ms = MinPollingIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// TypeFilter returns the normalized filter ("all" when unset).
func (p PollConfig) TypeFilter() string {
	if p.Types == "" {
		return TypesAll
	}
	return p.Types
}

// AdminConfig is the fallback administrator rule used when the API does not
// return an explicit flag. It only gates notification filtering.
type AdminConfig struct {
	// Identities match the configured identity exactly (case-insensitive).
	Identities []string `json:"identities"`
	// Markers match when the identity contains the substring.
	Markers []string `json:"markers"`
}

// DispatchConfig controls batch sequencing. Durations are Go duration strings.
type DispatchConfig struct {
	SummaryLead string `json:"summary_lead"`
	Spacing     string `json:"spacing"`
	ResetDelay  string `json:"reset_delay"`
	// CancelPendingOnStop cancels delayed notifications of in-flight batches
	// when polling stops or restarts.
	CancelPendingOnStop bool `json:"cancel_pending_on_stop"`
}

// SinkConfig controls desktop delivery.
//
// Driver values: "auto", "beeep", "dbus" (linux), "log".
type SinkConfig struct {
	Driver      string          `json:"driver"`
	AppName     string          `json:"app_name"`
	Icon        string          `json:"icon,omitempty"`
	RatePerSec  int             `json:"rate_per_sec"`
	QueueSize   int             `json:"queue_size"`
	HistorySize int             `json:"history_size"`
	Telegram    *TelegramMirror `json:"telegram,omitempty"`
}

// TelegramMirror optionally copies every delivered notification to a chat.
type TelegramMirror struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// ServerConfig controls the local trigger server.
//
// Security note: keep Addr on loopback; the endpoints are unauthenticated.
type ServerConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
	RatePerSec  int      `json:"rate_per_sec"`
	ReadTimeout string   `json:"read_timeout,omitempty"`
	Debug       bool     `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig enables the optional delivery history.
//
//	"storage": { "driver": "sqlite", "path": "./alertd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}
