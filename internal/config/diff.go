package config

import (
	"reflect"
	"sort"
	"strings"

	logx "alertd/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe structured
// attrs for logging. Secrets (telegram token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.api_url", newCfg.Poll.APIURL),
			logx.Bool("poll.identity_set", newCfg.Poll.Email != "" || newCfg.Poll.UserID != ""),
			logx.Int("poll.polling_interval", newCfg.Poll.PollingInterval),
			logx.String("poll.types", newCfg.Poll.TypeFilter()),
			logx.Bool("poll.enabled", newCfg.Poll.Enabled),
			logx.Bool("poll.repeat", newCfg.Poll.RepeatNotifications),
		)
	}

	if !reflect.DeepEqual(oldCfg.Admin, newCfg.Admin) {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Int("admin.identities", len(newCfg.Admin.Identities)),
			logx.Int("admin.markers", len(newCfg.Admin.Markers)),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.summary_lead", newCfg.Dispatch.SummaryLead),
			logx.String("dispatch.spacing", newCfg.Dispatch.Spacing),
			logx.Bool("dispatch.cancel_pending_on_stop", newCfg.Dispatch.CancelPendingOnStop),
		)
	}

	if !sinkEqual(oldCfg.Sink, newCfg.Sink) {
		changed = append(changed, "sink")
		tg := newCfg.Sink.Telegram
		attrs = append(attrs,
			logx.String("sink.driver", newCfg.Sink.Driver),
			logx.Int("sink.rate_per_sec", newCfg.Sink.RatePerSec),
			logx.Bool("sink.telegram", tg != nil && tg.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.debug", newCfg.Server.Debug),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oDriver, nDriver string
	var oPath, nPath string
	if oldCfg.Storage != nil {
		oDriver, oPath = strings.TrimSpace(oldCfg.Storage.Driver), strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nDriver, nPath = strings.TrimSpace(newCfg.Storage.Driver), strings.TrimSpace(newCfg.Storage.Path)
	}
	if oDriver != nDriver || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", nDriver), logx.Bool("storage.path_set", nPath != ""))
	}

	sort.Strings(changed)
	return changed, attrs
}

func sinkEqual(a, b SinkConfig) bool {
	ta, tb := a.Telegram, b.Telegram
	a.Telegram, b.Telegram = nil, nil
	if a != b {
		return false
	}
	if (ta == nil) != (tb == nil) {
		return false
	}
	return ta == nil || *ta == *tb
}

// PollChanged reports whether the poll section differs.
func PollChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return oldCfg.Poll != newCfg.Poll
}
