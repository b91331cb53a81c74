package logx

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "poller"))

	log.Debug("hidden")
	log.Info("cycle done", Int("count", 2), Err(errors.New("boom")), Err(nil))

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %s", len(lines), buf.String())
	}
	l := lines[0]
	if l["message"] != "cycle done" || l["comp"] != "poller" || l["count"] != float64(2) || l["err"] != "boom" {
		t.Fatalf("line = %v", l)
	}
	if c, _ := l["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %v", l["caller"])
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelWarn) {
		t.Fatal("Enabled does not follow level")
	}
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	zero.Info("no panic")
	Nop().Error("no output")
}

func TestServiceApplySwapsFileAndLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "alertd.log")

	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})
	child := log.With(String("comp", "app"))
	child.Info("dropped")
	child.Warn("kept")

	// Derived loggers follow the new level without being rebuilt.
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	child.Debug("now visible")
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := decodeLines(t, raw)
	var msgs []string
	for _, l := range lines {
		msgs = append(msgs, l["message"].(string))
		if l["comp"] != "app" {
			t.Fatalf("missing comp field: %v", l)
		}
	}
	if strings.Join(msgs, ",") != "kept,now visible" {
		t.Fatalf("messages = %v", msgs)
	}
}
