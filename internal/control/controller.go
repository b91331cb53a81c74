package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"alertd/internal/config"
	"alertd/internal/feed"
	"alertd/internal/notifier"
	"alertd/internal/poller"
	logx "alertd/pkg/logx"
)

// ErrBadRequest marks caller errors (missing title, invalid settings).
var ErrBadRequest = errors.New("bad request")

const (
	testTitle = "테스트 알림"
	testBody  = "알림이 정상적으로 작동합니다!"
)

// Scheduler is the part of the poller the controller drives.
type Scheduler interface {
	Snapshot() poller.Snapshot
	ClearHistory() (cleared int, oldWatermark string)
	SeenCount() int
	Watermark() string
}

// Prober checks connectivity to the remote API.
type Prober interface {
	Probe(ctx context.Context, p config.PollConfig) feed.ProbeResult
}

// Notifier queues notifications and reports deliveries.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
	History(ctx context.Context, limit int) []notifier.HistoryItem
}

// NotifyRequest is a local notification trigger.
type NotifyRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Silent bool   `json:"silent,omitempty"`
}

// Status is the operator view of the running daemon.
type Status struct {
	Status    string          `json:"status"`
	Port      string          `json:"port"`
	Platform  string          `json:"platform"`
	Sink      string          `json:"sink,omitempty"`
	Scheduler poller.Snapshot `json:"scheduler"`
	SeenCount int             `json:"seen_count"`
	Watermark string          `json:"watermark,omitempty"`
}

// ClearResult reports a seen-set reset.
type ClearResult struct {
	Success        bool   `json:"success"`
	ClearedCount   int    `json:"cleared_count"`
	OldLastChecked string `json:"old_last_checked,omitempty"`
}

// Controller exposes configuration and diagnostics operations independent of
// the transport serving them.
type Controller struct {
	cfgm  *config.ConfigManager
	sched Scheduler
	probe Prober
	notif Notifier
	log   logx.Logger

	sinkName func() string
}

func New(cfgm *config.ConfigManager, sched Scheduler, probe Prober, notif Notifier, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{cfgm: cfgm, sched: sched, probe: probe, notif: notif, log: log}
}

// SetSinkName reports the active sink in Status.
func (c *Controller) SetSinkName(fn func() string) { c.sinkName = fn }

// GetConfig returns the current poll settings.
func (c *Controller) GetConfig() config.PollConfig {
	if cfg := c.cfgm.Get(); cfg != nil {
		return cfg.Poll
	}
	return config.Default().Poll
}

// UpdateConfig merges patch into the settings, persists them and publishes
// the new snapshot; subscribers restart polling. Invalid input leaves the
// current settings untouched.
func (c *Controller) UpdateConfig(ctx context.Context, patch config.PollPatch) (config.PollConfig, error) {
	next, err := c.cfgm.Update(ctx, func(cfg *config.Config) error {
		return patch.Apply(&cfg.Poll)
	})
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return config.PollConfig{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return config.PollConfig{}, err
	}
	c.log.Info("settings updated",
		logx.String("identity", feed.Identity(next.Poll)),
		logx.Int("polling_interval", next.Poll.PollingInterval),
		logx.String("types", next.Poll.TypeFilter()),
	)
	return next.Poll, nil
}

// TestNotification shows a fixed notification through the normal pipeline.
func (c *Controller) TestNotification(ctx context.Context) (string, error) {
	return c.notify(ctx, notifier.Notification{
		Title:  testTitle,
		Body:   testBody,
		Source: notifier.SourceTest,
	})
}

// TestAPIConnection probes the remote API with the current identity.
func (c *Controller) TestAPIConnection(ctx context.Context) feed.ProbeResult {
	return c.probe.Probe(ctx, c.GetConfig())
}

// ClearProcessed empties the seen-set and watermark.
func (c *Controller) ClearProcessed() ClearResult {
	n, old := c.sched.ClearHistory()
	return ClearResult{Success: true, ClearedCount: n, OldLastChecked: old}
}

// Notify queues a local notification and returns its id.
func (c *Controller) Notify(ctx context.Context, req NotifyRequest) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("%w: title is required", ErrBadRequest)
	}
	return c.notify(ctx, notifier.Notification{
		Title:  req.Title,
		Body:   req.Body,
		Icon:   req.Icon,
		Silent: req.Silent,
		Source: notifier.SourceLocal,
	})
}

func (c *Controller) notify(ctx context.Context, n notifier.Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := c.notif.Notify(ctx, n); err != nil {
		return "", err
	}
	return n.ID, nil
}

// Status returns the daemon view.
func (c *Controller) Status() Status {
	st := Status{
		Status:    "running",
		Platform:  runtime.GOOS,
		Scheduler: c.sched.Snapshot(),
		SeenCount: c.sched.SeenCount(),
		Watermark: c.sched.Watermark(),
	}
	if cfg := c.cfgm.Get(); cfg != nil {
		if _, port, err := net.SplitHostPort(cfg.Server.Addr); err == nil {
			st.Port = port
		}
	}
	if c.sinkName != nil {
		st.Sink = c.sinkName()
	}
	return st
}

// History returns recent deliveries, newest first.
func (c *Controller) History(ctx context.Context, limit int) []notifier.HistoryItem {
	return c.notif.History(ctx, limit)
}
