package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"alertd/internal/config"
	"alertd/internal/policy"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestServerAddrResolution(t *testing.T) {
	dir := t.TempDir()

	g := &globals{cfgPath: filepath.Join(dir, "missing.json")}
	addr, err := g.serverAddr()
	if err != nil || addr != config.Default().Server.Addr {
		t.Fatalf("missing file: addr=%q err=%v", addr, err)
	}

	path := filepath.Join(dir, "alertd.json")
	if err := os.WriteFile(path, []byte(`{"server":{"enabled":true,"addr":"127.0.0.1:4555"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	g = &globals{cfgPath: path}
	if addr, err := g.serverAddr(); err != nil || addr != "127.0.0.1:4555" {
		t.Fatalf("file: addr=%q err=%v", addr, err)
	}

	if err := os.WriteFile(path, []byte(`{"server":{"enabled":false}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := g.serverAddr(); err == nil {
		t.Fatal("disabled server should be an error")
	}

	g.addr = "10.0.0.1:9"
	if addr, _ := g.serverAddr(); addr != "10.0.0.1:9" {
		t.Fatalf("--addr ignored: %q", addr)
	}
}

func TestNotifyCommand(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notification" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true,"message":"Notification sent","id":"n-1"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "notify", "Build done", "--body", "all green", "--addr", srv.URL, "--config", filepath.Join(t.TempDir(), "x.json"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(out, "queued n-1") {
		t.Fatalf("output = %q", out)
	}
	if got["title"] != "Build done" || got["body"] != "all green" {
		t.Fatalf("request = %v", got)
	}
}

func TestConfigSetSendsOnlyChangedFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/config" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"success":true,"config":{"polling_interval":30000}}`))
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "x.json")
	out, err := execute(t, "config", "set", "--interval", "30000", "--repeat=false", "--addr", srv.URL, "--config", cfgPath)
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if len(body) != 2 || body["polling_interval"] != float64(30000) || body["repeat_notifications"] != false {
		t.Fatalf("patch = %v", body)
	}
	if !strings.Contains(out, `"polling_interval": 30000`) {
		t.Fatalf("output = %q", out)
	}

	if _, err := execute(t, "config", "set", "--addr", srv.URL, "--config", cfgPath); err == nil {
		t.Fatal("empty patch should fail")
	}
}

func TestConfigSetTypesList(t *testing.T) {
	const types = "meeting,sales_consultation"
	for _, typ := range strings.Split(types, ",") {
		if !slices.Contains(policy.KnownTypes(), typ) {
			t.Fatalf("%q is not a known category", typ)
		}
	}

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"success":true,"config":{"types":"meeting,sales_consultation"}}`))
	}))
	defer srv.Close()

	if _, err := execute(t, "config", "set", "--types", types, "--addr", srv.URL, "--config", filepath.Join(t.TempDir(), "x.json")); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if len(body) != 1 || body["types"] != types {
		t.Fatalf("patch = %v", body)
	}
}

func TestConfigSetSurfacesValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"polling_interval must be > 0 (got -1)"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "config", "set", "--interval", "-1", "--addr", srv.URL, "--config", filepath.Join(t.TempDir(), "x.json"))
	if err == nil || !strings.Contains(err.Error(), "polling_interval") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnitEnvPassthrough(t *testing.T) {
	t.Setenv("EMAIL", " me@corp.com ")
	t.Setenv("API_URL", "")
	env := unitEnv()
	if env["EMAIL"] != "me@corp.com" {
		t.Fatalf("env = %v", env)
	}
	if _, ok := env["API_URL"]; ok {
		t.Fatalf("empty variable copied: %v", env)
	}
}
