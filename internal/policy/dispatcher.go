package policy

import (
	"context"
	"sync"
	"time"

	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

// Sender accepts notifications for delivery.
type Sender interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// SuppressedEvent is published when a delayed notification is dropped at
// fire time because its claim on the seen-set is gone.
type SuppressedEvent struct {
	ID    string `json:"id"`
	Token uint64 `json:"token"`
}

// Dispatcher executes plans. Immediate steps are sent synchronously, so a
// summary is always queued before its batch's individuals. Delayed steps run
// on timers owned by a per-batch cancel token.
type Dispatcher struct {
	send  Sender
	state *State
	log   logx.Logger
	bus   eventbus.Bus

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*pendingBatch
}

type pendingBatch struct {
	cancel    context.CancelFunc
	timers    []*time.Timer
	remaining int
}

func NewDispatcher(send Sender, st *State, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		send:    send,
		state:   st,
		log:     log,
		bus:     bus,
		pending: map[uint64]*pendingBatch{},
	}
}

// Dispatch runs p. It returns once the immediate steps are sent and the
// delayed ones are scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, p Plan) {
	if p.Empty() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var delayed []Step
	for _, s := range p.Steps {
		if s.Delay > 0 {
			delayed = append(delayed, s)
			continue
		}
		d.deliver(ctx, p, s)
	}
	if len(delayed) == 0 {
		return
	}

	// Delayed steps outlive the cycle that planned them; only the batch
	// token cancels them.
	bctx, cancel := context.WithCancel(context.Background())
	pb := &pendingBatch{cancel: cancel, remaining: len(delayed)}

	d.mu.Lock()
	d.seq++
	id := d.seq
	d.pending[id] = pb
	for _, s := range delayed {
		s := s
		pb.timers = append(pb.timers, time.AfterFunc(s.Delay, func() {
			defer d.done(id)
			if bctx.Err() != nil {
				return
			}
			d.deliver(bctx, p, s)
		}))
	}
	d.mu.Unlock()
}

func (d *Dispatcher) deliver(ctx context.Context, p Plan, s Step) {
	if !p.Repeat && s.RecordID != "" && d.state != nil && !d.state.Holds(s.RecordID, p.Token) {
		d.log.Debug("delayed notification suppressed", logx.String("id", s.RecordID))
		eventbus.Publish(d.bus, eventbus.PollSuppressed, SuppressedEvent{ID: s.RecordID, Token: p.Token})
		return
	}
	if err := d.send.Notify(ctx, s.Notice); err != nil {
		d.log.Warn("notification not queued",
			logx.String("id", s.Notice.ID),
			logx.String("source", s.Notice.Source),
			logx.Err(err),
		)
	}
}

func (d *Dispatcher) done(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pb, ok := d.pending[id]
	if !ok {
		return
	}
	pb.remaining--
	if pb.remaining <= 0 {
		pb.cancel()
		delete(d.pending, id)
	}
}

// CancelPending stops every delayed notification not yet fired and returns
// how many were dropped.
func (d *Dispatcher) CancelPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, pb := range d.pending {
		pb.cancel()
		for _, t := range pb.timers {
			if t.Stop() {
				n++
			}
		}
		delete(d.pending, id)
	}
	if n > 0 {
		d.log.Info("pending notifications canceled", logx.Int("count", n))
	}
	return n
}

// Pending returns the number of delayed notifications not yet fired.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, pb := range d.pending {
		n += pb.remaining
	}
	return n
}
