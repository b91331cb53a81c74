package sink

import (
	"context"
	"errors"
	"testing"

	"alertd/internal/config"
	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

type call struct {
	kind, title, body, icon string
}

type fakeBackend struct {
	calls []call
}

func (f *fakeBackend) Notify(title, message, iconPath string) error {
	f.calls = append(f.calls, call{"notify", title, message, iconPath})
	return nil
}

func (f *fakeBackend) Alert(title, message, iconPath string) error {
	f.calls = append(f.calls, call{"alert", title, message, iconPath})
	return nil
}

func TestDesktopPriorityMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    notifier.Notification
		want call
	}{
		{name: "normal", n: notifier.Notification{Title: "a", Body: "b", Priority: "normal"}, want: call{"notify", "a", "b", "default.png"}},
		{name: "high", n: notifier.Notification{Title: "a", Priority: "high", Icon: "x.png"}, want: call{"alert", "a", "", "x.png"}},
		{name: "high but silent", n: notifier.Notification{Title: "a", Priority: "high", Silent: true}, want: call{"notify", "a", "", "default.png"}},
	}
	for _, tt := range tests {
		fb := &fakeBackend{}
		d := NewDesktopWith(fb, "default.png")
		if err := d.Show(context.Background(), tt.n); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(fb.calls) != 1 || fb.calls[0] != tt.want {
			t.Fatalf("%s: calls = %+v, want %+v", tt.name, fb.calls, tt.want)
		}
	}
}

type stubSink struct {
	name  string
	err   error
	shown int
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Show(context.Context, notifier.Notification) error {
	s.shown++
	return s.err
}

func TestMultiReturnsPrimaryErrorOnly(t *testing.T) {
	t.Parallel()
	primary := &stubSink{name: "p"}
	mirror := &stubSink{name: "m", err: errors.New("chat gone")}
	m := NewMulti(primary, logx.Nop(), mirror)
	if err := m.Show(context.Background(), notifier.Notification{Title: "x"}); err != nil {
		t.Fatalf("mirror error leaked: %v", err)
	}
	if primary.shown != 1 || mirror.shown != 1 {
		t.Fatalf("shown p=%d m=%d", primary.shown, mirror.shown)
	}
	if m.Name() != "p+m" {
		t.Fatalf("name = %q", m.Name())
	}

	primary.err = errors.New("daemon down")
	if err := m.Show(context.Background(), notifier.Notification{Title: "x"}); !errors.Is(err, primary.err) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewLogDriverAndTelegramValidation(t *testing.T) {
	t.Parallel()
	s, err := New(config.SinkConfig{Driver: "log"}, logx.Nop())
	if err != nil || s.Name() != "log" {
		t.Fatalf("log driver: %v %v", s, err)
	}
	if err := s.Show(context.Background(), notifier.Notification{Title: "t"}); err != nil {
		t.Fatal(err)
	}

	_, err = New(config.SinkConfig{Driver: "log", Telegram: &config.TelegramMirror{Enabled: true, ChatID: 1}}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for telegram mirror without token")
	}
}

func TestUrgencyOf(t *testing.T) {
	t.Parallel()
	if urgencyOf(notifier.Notification{Priority: "high"}) != UrgencyCritical {
		t.Fatal("high must map to critical")
	}
	if urgencyOf(notifier.Notification{}) != UrgencyNormal {
		t.Fatal("default must map to normal")
	}
}
