package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"alertd/internal/eventbus"
	rtsup "alertd/internal/runtime/supervisor"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

var (
	ErrQueueFull  = errors.New("notifier queue full")
	ErrStopped    = errors.New("notifier stopped")
	ErrEmptyTitle = errors.New("notification title is required")
)

// Service implements an async notification pipeline:
// queue + single worker + rate limit + history.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	sink  Sink
	bus   eventbus.Bus
	store storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Notification
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory history, newest last.
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sink:  sink,
		log:   log,
		bus:   bus,
		store: store,
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps limits live. A new queue size takes effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetSink replaces the delivery sink. In-flight sends finish on the old one.
func (s *Service) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Service) SinkName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return ""
	}
	return s.sink.Name()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Start is idempotent.
	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		// delivery failures must not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	// One worker keeps queue order equal to display order.
	sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		// Clean exits happen on shutdown (queue close).
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("notifier worker exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues to finish, then close the queue so the worker drains.
		s.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop the worker; queued notifications are dropped.
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify queues n. It never blocks: a full queue returns ErrQueueFull.
// An empty ID is filled with a uuid.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if strings.TrimSpace(n.Title) == "" {
		return ErrEmptyTitle
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- n:
		eventbus.Publish(s.bus, eventbus.NotifierQueued, s.event(n, "", 0, nil))
		return nil
	default:
		eventbus.Publish(s.bus, eventbus.NotifierDropped, s.event(n, "", 0, ErrQueueFull))
		return ErrQueueFull
	}
}

// Queued returns the number of notifications waiting for the worker.
func (s *Service) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// History returns up to limit recent deliveries, newest first. The delivery
// store is preferred when configured; the memory ring is the fallback.
func (s *Service) History(ctx context.Context, limit int) []HistoryItem {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	st := s.store
	s.mu.Unlock()
	if st != nil {
		items, err := st.RecentDeliveries(ctx, limit)
		if err == nil {
			return items
		}
		s.log.Warn("history read failed; using memory", logx.Err(err))
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	n := min(limit, len(s.history))
	out := make([]HistoryItem, 0, n)
	for i := len(s.history) - 1; i >= len(s.history)-n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *Service) appendHistory(item HistoryItem, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(runCtx context.Context, n Notification) {
	// config snapshot for this send
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sink := s.sink
	st := s.store
	s.mu.Unlock()

	if sink == nil {
		return
	}
	if lim != nil {
		if err := lim.Wait(runCtx); err != nil {
			return
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
	err := sink.Show(callCtx, n)
	cancel()
	took := time.Since(start)

	item := HistoryItem{
		At:       start,
		ID:       n.ID,
		Title:    n.Title,
		Body:     n.Body,
		Priority: n.Priority,
		Source:   n.Source,
		Sink:     sink.Name(),
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("notification delivery failed",
			logx.String("id", n.ID),
			logx.String("sink", sink.Name()),
			logx.Err(err),
		)
		eventbus.Publish(s.bus, eventbus.NotifierFailed, s.event(n, sink.Name(), took, err))
	} else {
		s.log.Debug("notification shown",
			logx.String("id", n.ID),
			logx.String("source", n.Source),
			logx.Duration("took", took),
		)
		eventbus.Publish(s.bus, eventbus.NotifierSent, s.event(n, sink.Name(), took, nil))
	}

	s.appendHistory(item, cfg.HistorySize)
	if st != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if serr := st.AppendDelivery(sctx, item); serr != nil {
			s.log.Debug("history append failed", logx.Err(serr))
		}
		scancel()
	}
}

func (s *Service) event(n Notification, sink string, took time.Duration, err error) NotificationEvent {
	ev := NotificationEvent{
		ID:       n.ID,
		Source:   n.Source,
		Priority: n.Priority,
		Sink:     sink,
		At:       time.Now(),
		Took:     took,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
