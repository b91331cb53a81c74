// Package sink holds the notification surfaces the notifier delivers to.
package sink

import (
	"runtime"
	"strings"

	"alertd/internal/config"
	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

// New builds the sink described by cfg.
//
// "auto" prefers D-Bus on Linux (urgency hints reach the daemon) and beeep
// elsewhere; when D-Bus is unreachable it falls back to beeep. An enabled
// Telegram mirror is attached behind the primary sink.
func New(cfg config.SinkConfig, log logx.Logger) (notifier.Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "alertd"
	}

	var primary notifier.Sink
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "log":
		primary = NewLog(log.With(logx.String("comp", "sink")))
	case "beeep":
		primary = NewDesktop(appName, cfg.Icon)
	case "dbus":
		d, err := NewDBus(appName, cfg.Icon)
		if err != nil {
			return nil, err
		}
		primary = d
	default:
		if runtime.GOOS == "linux" {
			if d, err := NewDBus(appName, cfg.Icon); err == nil {
				primary = d
			} else {
				log.Info("dbus notifications unavailable; using beeep", logx.Err(err))
			}
		}
		if primary == nil {
			primary = NewDesktop(appName, cfg.Icon)
		}
	}

	tg := cfg.Telegram
	if tg == nil || !tg.Enabled {
		return primary, nil
	}
	mirror, err := NewTelegram(tg.Token, tg.ChatID, tg.ThreadID)
	if err != nil {
		return nil, err
	}
	return NewMulti(primary, log, mirror), nil
}

// Close releases connections held by s, if any.
func Close(s notifier.Sink) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
