package poller

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alertd/internal/config"
	"alertd/internal/eventbus"
	"alertd/internal/feed"
	"alertd/internal/policy"
	logx "alertd/pkg/logx"
)

// Fetcher performs one poll against the remote API.
type Fetcher interface {
	Fetch(ctx context.Context, req feed.Request) feed.Result
}

// Cycle outcomes besides failure kinds.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeSkipped   = "skipped"
)

// CycleEvent describes one finished cycle. It is published on the bus and
// kept as the latest snapshot entry.
type CycleEvent struct {
	Outcome    string        `json:"outcome"`
	Fetched    int           `json:"fetched"`
	Dispatched int           `json:"dispatched"`
	Filtered   int           `json:"filtered"`
	Duplicates int           `json:"duplicates"`
	SeenCount  int           `json:"seen_count"`
	Watermark  string        `json:"watermark,omitempty"`
	NoIdentity bool          `json:"no_identity,omitempty"`
	Took       time.Duration `json:"took"`
	Error      string        `json:"error,omitempty"`
}

// DispatchedEvent is published when a cycle hands notifications to the sink.
type DispatchedEvent struct {
	Count     int    `json:"count"`
	Watermark string `json:"watermark,omitempty"`
}

// ClearedEvent is published by ClearHistory.
type ClearedEvent struct {
	Cleared      int    `json:"cleared"`
	OldWatermark string `json:"old_watermark,omitempty"`
}

// Snapshot is the operator view of the scheduler.
type Snapshot struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	Runs        uint64        `json:"runs"`
	LastRun     time.Time     `json:"last_run,omitempty"`
	LastOutcome string        `json:"last_outcome,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LastCount   int           `json:"last_count"`
	NextRun     time.Time     `json:"next_run,omitempty"`
	Pending     int           `json:"pending"`
}

// Service drives fetch-and-dispatch cycles: one immediately on Start, then
// on a cron interval trigger. Cycles never overlap.
type Service struct {
	mu        sync.Mutex
	cfg       *config.Config
	c         *cron.Cron
	entry     cron.EntryID
	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  sync.WaitGroup
	reset     *time.Timer

	fetch Fetcher
	disp  *policy.Dispatcher
	state *policy.State
	log   logx.Logger
	bus   eventbus.Bus

	// cycleMu serializes cycles so the seen-set check-then-insert is
	// atomic per batch.
	cycleMu sync.Mutex

	smu  sync.Mutex
	snap Snapshot
}

func New(cfg *config.Config, fetch Fetcher, disp *policy.Dispatcher, st *policy.State, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if st == nil {
		st = policy.NewState()
	}
	return &Service{cfg: cfg, fetch: fetch, disp: disp, state: st, log: log, bus: bus}
}

// State returns the poll state owned by the scheduler.
func (s *Service) State() *policy.State { return s.state }

func (s *Service) SeenCount() int    { return s.state.SeenCount() }
func (s *Service) Watermark() string { return s.state.Watermark() }

func (s *Service) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Running reports whether the interval trigger is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Start enters the running state when polling is enabled: one cycle fires
// immediately, then one per interval. Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cfg := s.cfg
	if cfg == nil || !cfg.Poll.Enabled {
		s.log.Info("polling disabled")
		return
	}
	if feed.Identity(cfg.Poll) == "" {
		s.log.Warn("no email or user_id configured; notifications will not be scoped to a user")
	}

	interval := cfg.Poll.Interval()
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLogger(cl),
		// Ticks that land on a running cycle wait for it instead of being dropped.
		cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
	)
	s.entry = s.c.Schedule(fixedPeriod(interval), cron.FuncJob(func() {
		s.RunOnce(runCtx)
	}))
	s.c.Start()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.RunOnce(runCtx)
	}()

	s.log.Info("polling started",
		logx.Duration("interval", interval),
		logx.String("types", cfg.Poll.TypeFilter()),
		logx.Bool("repeat", cfg.Poll.RepeatNotifications),
	)
}

// Stop cancels the interval trigger and any in-flight fetch. Delayed
// notifications of earlier batches keep firing unless
// dispatch.cancel_pending_on_stop is set. Seen-set and watermark survive.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	cfg := s.cfg
	s.c = nil
	s.runCancel = nil
	if s.reset != nil {
		s.reset.Stop()
		s.reset = nil
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if cfg != nil && cfg.Dispatch.CancelPendingOnStop && s.disp != nil {
		s.disp.CancelPending()
	}
	s.log.Info("polling stopped")
}

// Apply restarts the scheduler with cfg. Poll state is preserved.
func (s *Service) Apply(ctx context.Context, cfg *config.Config) {
	s.Stop(ctx)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Start(ctx)
}

// SetConfig swaps the config used by later cycles without restarting the
// trigger. Interval and enablement changes need Apply.
func (s *Service) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// ClearHistory empties the seen-set and watermark and schedules one extra
// cycle after dispatch.reset_delay when polling is running. The re-fetch is
// scheduled even when there was nothing to clear.
func (s *Service) ClearHistory() (cleared int, oldWatermark string) {
	cleared, oldWatermark = s.state.Clear()
	eventbus.Publish(s.bus, eventbus.HistoryCleared, ClearedEvent{Cleared: cleared, OldWatermark: oldWatermark})
	s.log.Info("poll history cleared", logx.Int("cleared", cleared), logx.String("old_watermark", oldWatermark))

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	if s.c == nil || s.runCtx == nil || cfg == nil {
		return cleared, oldWatermark
	}
	_, _, delay := cfg.Dispatch.Timings()
	runCtx := s.runCtx
	if s.reset != nil {
		s.reset.Stop()
	}
	s.reset = time.AfterFunc(delay, func() {
		if runCtx.Err() != nil {
			return
		}
		s.RunOnce(runCtx)
	})
	return cleared, oldWatermark
}

// RunOnce performs one cycle with the current config and returns its outcome.
func (s *Service) RunOnce(ctx context.Context) CycleEvent {
	if ctx == nil {
		ctx = context.Background()
	}
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cfg := s.config()
	if cfg == nil || !cfg.Poll.Enabled {
		ev := CycleEvent{Outcome: OutcomeSkipped, SeenCount: s.state.SeenCount()}
		s.record(ev)
		return ev
	}

	start := time.Now()
	eventbus.Publish(s.bus, eventbus.PollStarted, nil)
	res := s.fetch.Fetch(ctx, feed.Request{Poll: cfg.Poll, Watermark: s.state.Watermark()})
	batch := policy.Evaluate(s.state, policy.Input{Result: res, Poll: cfg.Poll, Admin: cfg.Admin})

	lead, spacing, _ := cfg.Dispatch.Timings()
	plan := policy.BuildPlan(batch, policy.Timings{SummaryLead: lead, Spacing: spacing})
	if s.disp != nil {
		s.disp.Dispatch(ctx, plan)
	}

	ev := CycleEvent{
		Outcome:    OutcomeOK,
		Fetched:    len(res.Records),
		Dispatched: len(batch.Records),
		Filtered:   batch.Filtered,
		Duplicates: batch.Duplicates,
		SeenCount:  s.state.SeenCount(),
		Watermark:  s.state.Watermark(),
		NoIdentity: res.NoIdentity,
		Took:       time.Since(start),
	}
	switch {
	case res.Failure != nil:
		ev.Outcome = string(res.Failure.Kind)
		ev.Error = res.Failure.Error()
	case res.Malformed:
		ev.Outcome = OutcomeMalformed
	}
	s.record(ev)
	s.logCycle(ev, res)

	if ev.Outcome == OutcomeOK || ev.Outcome == OutcomeMalformed {
		eventbus.Publish(s.bus, eventbus.PollCompleted, ev)
	} else {
		eventbus.Publish(s.bus, eventbus.PollFailed, ev)
	}
	if !plan.Empty() {
		eventbus.Publish(s.bus, eventbus.PollDispatched, DispatchedEvent{Count: ev.Dispatched, Watermark: ev.Watermark})
	}
	return ev
}

func (s *Service) logCycle(ev CycleEvent, res feed.Result) {
	fields := []logx.Field{
		logx.String("outcome", ev.Outcome),
		logx.Int("fetched", ev.Fetched),
		logx.Int("dispatched", ev.Dispatched),
		logx.Duration("took", ev.Took),
	}
	switch {
	case res.Failure != nil:
		fields = append(fields, logx.Err(res.Failure))
		if res.Failure.Kind == feed.KindConnectionRefused {
			s.log.Warn("poll failed; is the API server running?", fields...)
			return
		}
		s.log.Warn("poll failed", fields...)
	case res.Malformed:
		s.log.Warn("poll response ignored", fields...)
	case ev.Dispatched > 0:
		s.log.Info("notifications dispatched", append(fields,
			logx.Int("filtered", ev.Filtered),
			logx.Int("duplicates", ev.Duplicates),
		)...)
	default:
		s.log.Debug("poll ok", append(fields, logx.Int("duplicates", ev.Duplicates))...)
	}
}

func (s *Service) record(ev CycleEvent) {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.snap.Runs++
	s.snap.LastRun = time.Now()
	s.snap.LastOutcome = ev.Outcome
	s.snap.LastError = ev.Error
	s.snap.LastCount = ev.Dispatched
}

// Snapshot returns the current scheduler view.
func (s *Service) Snapshot() Snapshot {
	s.smu.Lock()
	snap := s.snap
	s.smu.Unlock()

	s.mu.Lock()
	snap.Running = s.c != nil
	if s.cfg != nil {
		snap.Interval = s.cfg.Poll.Interval()
	}
	if s.c != nil {
		snap.NextRun = s.c.Entry(s.entry).Next
	}
	s.mu.Unlock()
	if s.disp != nil {
		snap.Pending = s.disp.Pending()
	}
	return snap
}

// cronLogger routes robfig/cron logs into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

// fixedPeriod fires every d exactly; cron.Every truncates to whole seconds.
type fixedPeriod time.Duration

func (p fixedPeriod) Next(t time.Time) time.Time { return t.Add(time.Duration(p)) }
