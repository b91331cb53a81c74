package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"alertd/internal/eventbus"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

type recordingSink struct {
	mu    sync.Mutex
	shown []Notification
	block chan struct{}
	err   error
}

func (r *recordingSink) Name() string { return "rec" }

func (r *recordingSink) Show(ctx context.Context, n Notification) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.shown = append(r.shown, n)
	r.mu.Unlock()
	return r.err
}

func (r *recordingSink) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.shown))
	for _, n := range r.shown {
		out = append(out, n.Title)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
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

func TestServiceDeliversInOrder(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	s := New(Config{RatePerSec: 1000}, sink, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for _, title := range []string{"summary", "one", "two"} {
		if err := s.Notify(context.Background(), Notification{Title: title}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	waitFor(t, func() bool { return len(sink.titles()) == 3 })
	got := sink.titles()
	if got[0] != "summary" || got[1] != "one" || got[2] != "two" {
		t.Fatalf("order = %v", got)
	}

	hist := s.History(context.Background(), 10)
	if len(hist) != 3 || hist[0].Title != "two" || hist[0].Sink != "rec" || hist[0].ID == "" {
		t.Fatalf("history = %+v", hist)
	}

	sent := 0
	waitFor(t, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Type == eventbus.NotifierSent {
					sent++
				}
			default:
				return sent == 3
			}
		}
	})
}

func TestServiceRejects(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{block: make(chan struct{})}
	s := New(Config{QueueSize: 1, RatePerSec: 1000}, sink, logx.Nop(), nil, nil)

	if err := s.Notify(context.Background(), Notification{Title: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("before start: %v", err)
	}
	s.Start(context.Background())

	if err := s.Notify(context.Background(), Notification{}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("empty title: %v", err)
	}

	// First item is picked up by the blocked worker, second fills the queue.
	if err := s.Notify(context.Background(), Notification{Title: "a"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Queued() == 0 })
	if err := s.Notify(context.Background(), Notification{Title: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(context.Background(), Notification{Title: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("full queue: %v", err)
	}

	close(sink.block)
	s.Stop(context.Background())
	if got := sink.titles(); len(got) != 2 {
		t.Fatalf("drained %v", got)
	}
	if err := s.Notify(context.Background(), Notification{Title: "late"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: %v", err)
	}
}

func TestServiceRecordsFailuresAndStore(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	sink := &recordingSink{err: errors.New("daemon gone")}
	s := New(Config{RatePerSec: 1000}, sink, logx.Nop(), nil, st)
	s.Start(context.Background())
	if err := s.Notify(context.Background(), Notification{ID: "n1", Title: "x", Source: SourceLocal}); err != nil {
		t.Fatal(err)
	}
	s.Stop(context.Background())

	hist := s.History(context.Background(), 5)
	if len(hist) != 1 || hist[0].ID != "n1" || hist[0].Error != "daemon gone" || hist[0].Source != SourceLocal {
		t.Fatalf("history = %+v", hist)
	}
}
