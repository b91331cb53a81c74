package userunit

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	u := Unit{
		Name:      "alertd",
		ExecStart: "/usr/local/bin/alertd",
		Args:      []string{"run", "--config", "/home/me/my settings.json"},
		Env:       map[string]string{"EMAIL": "me@corp.com", "API_URL": "http://x"},
	}
	got := u.Render()
	for _, want := range []string{
		"Description=alertd\n",
		"Type=notify\n",
		`ExecStart=/usr/local/bin/alertd run --config "/home/me/my settings.json"` + "\n",
		"Environment=API_URL=http://x\nEnvironment=EMAIL=me@corp.com\n",
		"WantedBy=default.target\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("unit missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "WorkingDirectory") {
		t.Fatalf("unexpected WorkingDirectory:\n%s", got)
	}
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	p, err := Unit{Name: "alertd.service"}.Path()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "alertd.service" || !strings.Contains(p, filepath.Join("systemd", "user")) {
		t.Fatalf("path = %s", p)
	}
}

func TestStatusFromProps(t *testing.T) {
	ts := uint64(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMicro())
	st := statusFromProps("alertd", map[string]interface{}{
		"ActiveState":          "active",
		"SubState":             "running",
		"LoadState":            "loaded",
		"UnitFileState":        "enabled",
		"ActiveEnterTimestamp": ts,
	})
	if st.Active != "active" || !st.Enabled || st.ActiveSince.Unix() != int64(ts/1_000_000) {
		t.Fatalf("status = %+v", st)
	}

	missing := statusFromProps("alertd", map[string]interface{}{"LoadState": "not-found"})
	if missing.Active != "unknown" || missing.SubState != "not-found" || missing.Enabled {
		t.Fatalf("missing = %+v", missing)
	}
}
