package sink

import (
	"context"

	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

// Log writes notifications to the logger. Used on headless hosts and as the
// fallback when no desktop backend is reachable.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Show(ctx context.Context, n notifier.Notification) error {
	l.log.Info("notification",
		logx.String("id", n.ID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.String("priority", n.Priority),
		logx.String("source", n.Source),
	)
	return nil
}
