package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalid marks configuration values that must be rejected.
var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks cfg without mutating it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}
	p := cfg.Poll
	if p.PollingInterval <= 0 {
		return invalid("poll.polling_interval must be > 0 (got %d)", p.PollingInterval)
	}
	if u := strings.TrimSpace(p.APIURL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			return invalid("poll.api_url must be an http(s) URL (got %q)", u)
		}
	}
	if strings.TrimSpace(p.Types) == "" && p.Types != "" {
		return invalid("poll.types must not be blank")
	}

	if _, err := ParseDurationField("dispatch.summary_lead", cfg.Dispatch.SummaryLead); err != nil {
		return invalid("%v", err)
	}
	if _, err := ParseDurationField("dispatch.spacing", cfg.Dispatch.Spacing); err != nil {
		return invalid("%v", err)
	}
	if _, err := ParseDurationField("dispatch.reset_delay", cfg.Dispatch.ResetDelay); err != nil {
		return invalid("%v", err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Sink.Driver)) {
	case "", "auto", "beeep", "dbus", "log":
	default:
		return invalid("sink.driver: unknown %q", cfg.Sink.Driver)
	}
	if cfg.Sink.RatePerSec < 0 || cfg.Sink.QueueSize < 0 || cfg.Sink.HistorySize < 0 {
		return invalid("sink.rate_per_sec, sink.queue_size and sink.history_size must be >= 0")
	}
	if tg := cfg.Sink.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" || tg.ChatID == 0 {
			return invalid("sink.telegram requires token and chat_id when enabled")
		}
	}

	if cfg.Server.Enabled {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Server.Addr)); err != nil {
			return invalid("server.addr: %v", err)
		}
	}
	if cfg.Server.RatePerSec < 0 {
		return invalid("server.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return invalid("%v", err)
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				return invalid("storage.path is required when storage.driver=%s", st.Driver)
			}
		default:
			return invalid("storage.driver: unknown %q", st.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

// Normalize repairs values that are safe to repair in place and returns a
// human-readable note for each repair. A non-positive interval found at
// startup is replaced by the default; positive values under the floor are
// clamped up.
func Normalize(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	var notes []string
	p := &cfg.Poll
	if p.PollingInterval <= 0 {
		notes = append(notes, fmt.Sprintf("poll.polling_interval %d is not positive; using %d", p.PollingInterval, DefaultPollingIntervalMs))
		p.PollingInterval = DefaultPollingIntervalMs
	} else if p.PollingInterval < MinPollingIntervalMs {
		notes = append(notes, fmt.Sprintf("poll.polling_interval %d is below the %dms floor; clamped", p.PollingInterval, MinPollingIntervalMs))
		p.PollingInterval = MinPollingIntervalMs
	}
	p.Email = strings.TrimSpace(p.Email)
	p.UserID = strings.TrimSpace(p.UserID)
	p.APIURL = strings.TrimSpace(p.APIURL)
	if strings.TrimSpace(p.Types) == "" {
		p.Types = TypesAll
	}
	return notes
}
