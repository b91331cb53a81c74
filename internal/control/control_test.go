package control

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"alertd/internal/config"
	"alertd/internal/feed"
	"alertd/internal/notifier"
	"alertd/internal/poller"
	logx "alertd/pkg/logx"
)

type fakeScheduler struct {
	cleared int
	wm      string
}

func (f *fakeScheduler) Snapshot() poller.Snapshot { return poller.Snapshot{Running: true, Runs: 3} }
func (f *fakeScheduler) ClearHistory() (int, string) {
	n, wm := f.cleared, f.wm
	f.cleared, f.wm = 0, ""
	return n, wm
}
func (f *fakeScheduler) SeenCount() int    { return f.cleared }
func (f *fakeScheduler) Watermark() string { return f.wm }

type fakeProber struct {
	got config.PollConfig
}

func (f *fakeProber) Probe(_ context.Context, p config.PollConfig) feed.ProbeResult {
	f.got = p
	return feed.ProbeResult{Success: true, Count: 2}
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []notifier.Notification
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, n notifier.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.got = append(f.got, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) History(_ context.Context, limit int) []notifier.HistoryItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []notifier.HistoryItem{}
	for i := len(f.got) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, notifier.HistoryItem{ID: f.got[i].ID, Title: f.got[i].Title})
	}
	return out
}

type fixture struct {
	ctl   *Controller
	cfgm  *config.ConfigManager
	sched *fakeScheduler
	probe *fakeProber
	notif *fakeNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := config.NewConfigManager(filepath.Join(t.TempDir(), "alertd.json"))
	m.SetDefaults(func() *config.Config { return config.DefaultFrom(nil) })
	if _, _, err := m.LoadOrInit(); err != nil {
		t.Fatal(err)
	}
	f := fixture{cfgm: m, sched: &fakeScheduler{cleared: 4, wm: "2024-01-01T00:00:00Z"}, probe: &fakeProber{}, notif: &fakeNotifier{}}
	f.ctl = New(m, f.sched, f.probe, f.notif, logx.Nop())
	return f
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func TestUpdateConfigMergesAndPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.cfgm.Subscribe(1)
	defer f.cfgm.Unsubscribe(sub)

	pc, err := f.ctl.UpdateConfig(context.Background(), config.PollPatch{Email: strPtr("  me@corp.com "), PollingInterval: intPtr(20000)})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if pc.Email != "me@corp.com" || pc.PollingInterval != 20000 || pc.Types != config.TypesAll {
		t.Fatalf("merged = %+v", pc)
	}
	select {
	case cfg := <-sub:
		if cfg.Poll.Email != "me@corp.com" {
			t.Fatalf("published = %+v", cfg.Poll)
		}
	default:
		t.Fatal("update not published")
	}
	if f.ctl.GetConfig().Email != "me@corp.com" {
		t.Fatal("GetConfig does not reflect update")
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	before := f.ctl.GetConfig()
	_, err := f.ctl.UpdateConfig(context.Background(), config.PollPatch{PollingInterval: intPtr(-1)})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v", err)
	}
	if f.ctl.GetConfig() != before {
		t.Fatal("invalid update changed settings")
	}
}

func TestNotifyRequiresTitle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.ctl.Notify(context.Background(), NotifyRequest{Title: "  "}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v", err)
	}
	id, err := f.ctl.Notify(context.Background(), NotifyRequest{Title: "hello", Body: "b"})
	if err != nil || id == "" {
		t.Fatalf("Notify = %q, %v", id, err)
	}
	if len(f.notif.got) != 1 || f.notif.got[0].Source != notifier.SourceLocal || f.notif.got[0].ID != id {
		t.Fatalf("queued = %+v", f.notif.got)
	}
}

func TestNotifyPropagatesQueueErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notif.err = notifier.ErrQueueFull
	if _, err := f.ctl.Notify(context.Background(), NotifyRequest{Title: "x"}); !errors.Is(err, notifier.ErrQueueFull) {
		t.Fatalf("err = %v", err)
	}
}

func TestTestNotificationText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.ctl.TestNotification(context.Background()); err != nil {
		t.Fatal(err)
	}
	n := f.notif.got[0]
	if n.Title != "테스트 알림" || n.Body != "알림이 정상적으로 작동합니다!" || n.Source != notifier.SourceTest {
		t.Fatalf("test notification = %+v", n)
	}
}

func TestStatusAndClear(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ctl.SetSinkName(func() string { return "log" })

	st := f.ctl.Status()
	if st.Status != "running" || st.Port != config.DefaultServerPort || st.SeenCount != 4 || st.Sink != "log" || !st.Scheduler.Running {
		t.Fatalf("status = %+v", st)
	}

	res := f.ctl.ClearProcessed()
	if !res.Success || res.ClearedCount != 4 || res.OldLastChecked != "2024-01-01T00:00:00Z" {
		t.Fatalf("clear = %+v", res)
	}
	if res := f.ctl.ClearProcessed(); res.ClearedCount != 0 || !res.Success {
		t.Fatalf("second clear = %+v", res)
	}
}

func TestTestAPIConnectionUsesCurrentConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.ctl.UpdateConfig(context.Background(), config.PollPatch{UserID: strPtr("u-1")}); err != nil {
		t.Fatal(err)
	}
	if pr := f.ctl.TestAPIConnection(context.Background()); !pr.Success || pr.Count != 2 {
		t.Fatalf("probe = %+v", pr)
	}
	if f.probe.got.UserID != "u-1" {
		t.Fatalf("probe used %+v", f.probe.got)
	}
}
