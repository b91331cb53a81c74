package app

import (
	"context"
	"strings"

	"alertd/internal/config"
	"alertd/internal/notifier/sink"
	logx "alertd/pkg/logx"
)

// reloadLoop applies published configs (file edits and Update calls) to the
// running components.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	if sectionChanged(sections, "logging") {
		a.logs.Apply(logConfig(next))
	}

	if sectionChanged(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	if sectionChanged(sections, "sink") {
		a.notif.Apply(notifierConfig(next))
		if prev == nil || !sinkTargetEqual(prev.Sink, next.Sink) {
			a.swapSink(next.Sink)
		}
	}

	switch {
	case config.PollChanged(prev, next):
		// Identity, interval or enablement moved: restart the trigger. The
		// seen-set and watermark survive.
		a.poller.Apply(ctx, next)
	case sectionChanged(sections, "admin"), sectionChanged(sections, "dispatch"):
		a.poller.SetConfig(next)
	}

	if sectionChanged(sections, "server") {
		a.srv.Reconfigure(ctx, serverConfig(next))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// sinkTargetEqual ignores pipeline tuning that Apply handles in place.
func sinkTargetEqual(a, b config.SinkConfig) bool {
	if a.Driver != b.Driver || a.AppName != b.AppName || a.Icon != b.Icon {
		return false
	}
	ta, tb := a.Telegram, b.Telegram
	if (ta == nil) != (tb == nil) {
		return false
	}
	return ta == nil || *ta == *tb
}

func (a *App) swapSink(sc config.SinkConfig) {
	next, err := sink.New(sc, a.log)
	if err != nil {
		a.log.Warn("invalid sink config; keeping previous", logx.Err(err))
		return
	}
	a.sinkMu.Lock()
	old := a.sink
	a.sink = next
	a.sinkMu.Unlock()

	a.notif.SetSink(next)
	if err := sink.Close(old); err != nil {
		a.log.Debug("closing previous sink failed", logx.Err(err))
	}
	a.log.Info("notification sink switched", logx.String("sink", next.Name()))
}
