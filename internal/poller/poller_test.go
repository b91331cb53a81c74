package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"alertd/internal/config"
	"alertd/internal/eventbus"
	"alertd/internal/feed"
	"alertd/internal/notifier"
	"alertd/internal/policy"
	logx "alertd/pkg/logx"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	results  []feed.Result
	requests []feed.Request
}

func (f *scriptedFetcher) Fetch(_ context.Context, req feed.Request) feed.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return feed.Result{}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func (f *scriptedFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type countingSender struct {
	mu  sync.Mutex
	got []notifier.Notification
}

func (c *countingSender) Notify(_ context.Context, n notifier.Notification) error {
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func testConfig() *config.Config {
	cfg := config.DefaultFrom(nil)
	cfg.Poll.Email = "a@b.com"
	cfg.Poll.RepeatNotifications = false
	cfg.Poll.PollingInterval = 60000
	cfg.Dispatch = config.DispatchConfig{SummaryLead: "10ms", Spacing: "10ms", ResetDelay: "10ms"}
	return cfg
}

func newService(t *testing.T, cfg *config.Config, f *scriptedFetcher) (*Service, *countingSender) {
	t.Helper()
	st := policy.NewState()
	snd := &countingSender{}
	disp := policy.NewDispatcher(snd, st, logx.Nop(), nil)
	s := New(cfg, f, disp, st, logx.Nop(), eventbus.New())
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, snd
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func one(id string) feed.Result {
	return feed.Result{Records: []feed.Record{{ID: feed.ID(id), Type: "meeting", Title: "t"}}, LastChecked: "wm-" + id}
}

func TestStartFiresImmediately(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{results: []feed.Result{one("1")}}
	s, snd := newService(t, testConfig(), f)
	s.Start(context.Background())
	if !s.Running() {
		t.Fatal("not running")
	}
	waitUntil(t, func() bool { return s.Snapshot().Runs == 1 })
	snap := s.Snapshot()
	if snd.count() != 1 || snap.LastOutcome != OutcomeOK || snap.Interval != time.Minute || snap.NextRun.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSubSecondIntervalKeepsPeriod(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := fixedPeriod(2500 * time.Millisecond).Next(now).Sub(now); got != 2500*time.Millisecond {
		t.Fatalf("period = %s", got)
	}

	cfg := testConfig()
	cfg.Poll.PollingInterval = 2500
	s, _ := newService(t, cfg, &scriptedFetcher{results: []feed.Result{one("1")}})
	start := time.Now()
	s.Start(context.Background())
	waitUntil(t, func() bool { return !s.Snapshot().NextRun.IsZero() })
	d := s.Snapshot().NextRun.Sub(start)
	if d < 2500*time.Millisecond || d > 3*time.Second {
		t.Fatalf("next run in %s, want about 2.5s", d)
	}
}

func TestDisabledDoesNotStart(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Poll.Enabled = false
	f := &scriptedFetcher{}
	s, _ := newService(t, cfg, f)
	s.Start(context.Background())
	if s.Running() {
		t.Fatal("disabled scheduler must stay stopped")
	}
	if ev := s.RunOnce(context.Background()); ev.Outcome != OutcomeSkipped || f.calls() != 0 {
		t.Fatalf("disabled cycle = %+v calls=%d", ev, f.calls())
	}
}

func TestRunOnceDedupAndWatermark(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{results: []feed.Result{one("1")}}
	s, snd := newService(t, testConfig(), f)

	ev := s.RunOnce(context.Background())
	if ev.Dispatched != 1 || ev.Watermark != "wm-1" || ev.SeenCount != 1 {
		t.Fatalf("first cycle = %+v", ev)
	}
	ev = s.RunOnce(context.Background())
	if ev.Dispatched != 0 || ev.Duplicates != 1 {
		t.Fatalf("second cycle = %+v", ev)
	}
	if snd.count() != 1 {
		t.Fatalf("sent = %d", snd.count())
	}
	f.mu.Lock()
	second := f.requests[1]
	f.mu.Unlock()
	if second.Watermark != "wm-1" {
		t.Fatalf("second request watermark = %q", second.Watermark)
	}
}

func TestRunOnceFailureOutcome(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{results: []feed.Result{{Failure: &feed.Failure{Kind: feed.KindConnectionRefused}}}}
	s, snd := newService(t, testConfig(), f)
	ev := s.RunOnce(context.Background())
	if ev.Outcome != string(feed.KindConnectionRefused) || snd.count() != 0 {
		t.Fatalf("cycle = %+v", ev)
	}
	if s.Snapshot().LastError == "" {
		t.Fatal("failure not recorded")
	}
}

func TestApplyPreservesState(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{results: []feed.Result{one("1")}}
	s, snd := newService(t, testConfig(), f)
	s.Start(context.Background())
	waitUntil(t, func() bool { return snd.count() == 1 })

	next := testConfig()
	next.Poll.PollingInterval = 30000
	s.Apply(context.Background(), next)
	waitUntil(t, func() bool { return f.calls() == 2 })

	if !s.State().Seen("1") {
		t.Fatal("seen-set lost on restart")
	}
	if snd.count() != 1 {
		t.Fatalf("restart re-dispatched seen record: %d", snd.count())
	}
	if s.Snapshot().Interval != 30*time.Second {
		t.Fatalf("interval = %v", s.Snapshot().Interval)
	}
}

func TestClearHistoryRefetches(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{results: []feed.Result{one("1")}}
	s, snd := newService(t, testConfig(), f)
	s.Start(context.Background())
	waitUntil(t, func() bool { return snd.count() == 1 })

	cleared, old := s.ClearHistory()
	if cleared != 1 || old != "wm-1" {
		t.Fatalf("clear = %d %q", cleared, old)
	}
	// The re-fetch after reset_delay shows the record again.
	waitUntil(t, func() bool { return snd.count() == 2 })

	// Clearing again with an empty set still schedules a re-fetch.
	s.State().Clear()
	calls := f.calls()
	if n, _ := s.ClearHistory(); n != 0 {
		t.Fatalf("second clear = %d", n)
	}
	waitUntil(t, func() bool { return f.calls() == calls+1 })
}

func TestStopCancelsPendingWhenConfigured(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Dispatch = config.DispatchConfig{SummaryLead: "1h", Spacing: "1h", CancelPendingOnStop: true}
	two := feed.Result{Records: []feed.Record{{ID: "1", Type: "meeting", Title: "a"}, {ID: "2", Type: "meeting", Title: "b"}}}
	f := &scriptedFetcher{results: []feed.Result{two}}
	s, snd := newService(t, cfg, f)
	s.Start(context.Background())
	waitUntil(t, func() bool { return s.Snapshot().Pending == 2 })
	if snd.count() != 1 {
		t.Fatalf("sent before stop = %d", snd.count())
	}
	s.Stop(context.Background())
	if s.Snapshot().Pending != 0 {
		t.Fatal("pending notifications survived stop")
	}
}
