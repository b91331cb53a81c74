package settings

import (
	"strings"
	"testing"
	"time"

	"alertd/internal/config"
	"alertd/internal/control"
	"alertd/internal/feed"
	"alertd/internal/notifier"
	"alertd/internal/poller"
)

func TestValuesRoundTrip(t *testing.T) {
	t.Parallel()
	pc := config.PollConfig{
		APIURL:          "http://x/api/notifications",
		Email:           "a@b.com",
		PollingInterval: 15000,
		Types:           "meeting, sales_consultation",
		Enabled:         true,
	}
	v := FromPoll(pc)
	if v.Interval != "15000" || len(v.Types) != 2 || !v.Enabled || v.Repeat {
		t.Fatalf("values = %+v", v)
	}

	patch, err := v.Patch()
	if err != nil {
		t.Fatal(err)
	}
	var got config.PollConfig
	if err := patch.Apply(&got); err != nil {
		t.Fatal(err)
	}
	if got.Types != "meeting,sales_consultation" || got.PollingInterval != 15000 || got.Email != "a@b.com" {
		t.Fatalf("applied = %+v", got)
	}
}

func TestValuesAllTypes(t *testing.T) {
	t.Parallel()
	v := FromPoll(config.PollConfig{Types: "all", PollingInterval: 10000})
	if len(v.Types) != 0 {
		t.Fatalf("types = %v", v.Types)
	}
	patch, err := v.Patch()
	if err != nil {
		t.Fatal(err)
	}
	if *patch.Types != config.TypesAll {
		t.Fatalf("types = %q", *patch.Types)
	}
}

func TestIntervalValidation(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "abc", "0", "-5", "999"} {
		if _, err := (Values{Interval: in}).Patch(); err == nil {
			t.Fatalf("interval %q accepted", in)
		}
	}
	if err := validateInterval(" 1000 "); err != nil {
		t.Fatalf("1000 rejected: %v", err)
	}
	if err := validateURL("localhost"); err == nil {
		t.Fatal("bare host accepted")
	}
}

func TestRenderers(t *testing.T) {
	t.Parallel()
	st := control.Status{
		Status:    "running",
		Port:      "3001",
		Platform:  "linux",
		Sink:      "dbus",
		Scheduler: poller.Snapshot{Running: true, Interval: 10 * time.Second, Runs: 7, LastOutcome: "ok"},
		SeenCount: 3,
		Watermark: "wm-1",
	}
	out := RenderStatus(st)
	for _, want := range []string{"running", "3001", "dbus", "10s", "wm-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}

	pr := RenderProbe(feed.ProbeResult{Success: false, Message: "connection refused"})
	if !strings.Contains(pr, "connection refused") {
		t.Fatalf("probe = %q", pr)
	}

	hist := RenderHistory([]notifier.HistoryItem{{At: time.Now(), Title: "회의", Source: notifier.SourcePoll, Error: "boom"}})
	if !strings.Contains(hist, "회의") || !strings.Contains(hist, "boom") {
		t.Fatalf("history = %q", hist)
	}
	if !strings.Contains(RenderHistory(nil), "no notifications") {
		t.Fatal("empty history")
	}
}
